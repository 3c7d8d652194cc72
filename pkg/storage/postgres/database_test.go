package postgres_test

import (
	"os"
	"testing"

	"klinefeed/config"
	"klinefeed/pkg/storage/postgres"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv("KLINEFEED_TEST_POSTGRES_HOST") == "" {
		t.Skip("KLINEFEED_TEST_POSTGRES_HOST not set")
	}

	cfg := config.PostgresConfig{
		Host:     os.Getenv("KLINEFEED_TEST_POSTGRES_HOST"),
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("KLINEFEED_TEST_POSTGRES_PASSWORD"),
		DBName:   "klinefeed_test",
		SSLMode:  "disable",
	}

	if err := postgres.CreateDatabase(cfg); err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	// second call sees the existing database
	if err := postgres.CreateDatabase(cfg); err != nil {
		t.Fatalf("create existing database: %v", err)
	}
}

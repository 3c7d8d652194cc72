package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"klinefeed/config"
	"klinefeed/internal/memorystore"
	"klinefeed/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// Store keeps each symbol's snapshot as one JSON string under keyPrefix+SYMBOL.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewClient builds a redis client from config and checks it with PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

func NewStore(client redis.UniversalClient, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) key(symbol string) string {
	return s.keyPrefix + strings.ToUpper(symbol)
}

func (s *Store) Save(ctx context.Context, symbol string, bars []memorystore.Bar) error {
	data, err := storage.EncodeSnapshot(bars)
	if err != nil {
		return storage.SaveError(symbol, err)
	}
	if err := s.client.Set(ctx, s.key(symbol), data, 0).Err(); err != nil {
		return storage.SaveError(symbol, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, symbol string) ([]memorystore.Bar, error) {
	data, err := s.client.Get(ctx, s.key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []memorystore.Bar{}, nil
	}
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}

	bars, err := storage.DecodeSnapshot(data)
	if err != nil {
		return nil, storage.LoadError(symbol, err)
	}
	return bars, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Session  SessionConfig  `mapstructure:"session"`
	Store    StoreConfig    `mapstructure:"store"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Backfill bool          `mapstructure:"backfill"` // seed empty snapshots from /api/v3/klines
}

type WSConfig struct {
	URL              string        `mapstructure:"url"`
	Quote            string        `mapstructure:"quote"` // quote asset appended to the symbol, e.g. "USDT"
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"` // 0 disables the read deadline
}

// SessionConfig holds the initial subscription and the controller limits.
type SessionConfig struct {
	Symbol       string        `mapstructure:"symbol"`
	Interval     string        `mapstructure:"interval"`
	MaxBars      int           `mapstructure:"max_bars"`
	CloseTimeout time.Duration `mapstructure:"close_timeout"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"` // 0 disables re-activation after a failed connection
	StatsEvery   time.Duration `mapstructure:"stats_every"`
}

type StoreConfig struct {
	Backend string        `mapstructure:"backend"` // "file", "memory", "redis" or "postgres"
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SinkConfig struct {
	Backends []string `mapstructure:"backends"` // any of "log", "redis", "kafka"
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	Channel     string        `mapstructure:"channel"` // pub/sub channel prefix for the render sink
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.rest.backfill", false)
	v.SetDefault("binance.ws.url", "wss://stream.binance.com:9443")
	v.SetDefault("binance.ws.quote", "USDT")
	v.SetDefault("binance.ws.handshake_timeout", 10*time.Second)
	v.SetDefault("binance.ws.read_timeout", time.Duration(0))

	v.SetDefault("session.symbol", "ETH")
	v.SetDefault("session.interval", "1m")
	v.SetDefault("session.max_bars", 100)
	v.SetDefault("session.close_timeout", 5*time.Second)
	v.SetDefault("session.retry_delay", time.Duration(0))
	v.SetDefault("session.stats_every", 30*time.Second)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "./data")
	v.SetDefault("store.timeout", 2*time.Second)

	v.SetDefault("sink.backends", []string{"log"})

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "klinefeed:snapshot:")
	v.SetDefault("redis.channel", "klinefeed:bars:")
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("kafka.topic", "klinefeed.bars")
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.dbname", "klinefeed")
}

// Load loads application configuration using Viper.
// It reads config.yaml when one is found and overrides with environment variables
// (a .env file in the working directory is loaded first).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if ex, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	return load(v)
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Support environment variables with dot notation (e.g., SESSION_SYMBOL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

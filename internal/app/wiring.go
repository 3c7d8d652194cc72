package app

import (
	"context"
	"fmt"

	"klinefeed/config"
	"klinefeed/internal/render"
	"klinefeed/pkg/storage"
	"klinefeed/pkg/storage/file"
	"klinefeed/pkg/storage/memory"
	"klinefeed/pkg/storage/postgres"
	redisstore "klinefeed/pkg/storage/redis"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// resources owns the clients opened for the configured backends.
type resources struct {
	redis   *redis.Client
	closers []func() error
}

func (r *resources) redisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := redisstore.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.redis = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}

func (r *resources) Close(logger *zap.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	r.closers = nil
}

// openStore builds the snapshot store selected by store.backend.
func (r *resources) openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	logger.Info("opening snapshot store", zap.String("backend", cfg.Store.Backend))

	switch cfg.Store.Backend {
	case "", "file":
		return file.NewStore(cfg.Store.Dir)
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		client, err := r.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return redisstore.NewStore(client, cfg.Redis.KeyPrefix), nil
	case "postgres":
		pg, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to DB: %w", err)
		}
		if !pg.IsHealthy(ctx) {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres is not healthy")
		}
		r.closers = append(r.closers, pg.Close)
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildSink combines the sinks listed in sink.backends. With none listed the
// log sink is used.
func (r *resources) buildSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (render.Sink, error) {
	names := cfg.Sink.Backends
	if len(names) == 0 {
		names = []string{"log"}
	}

	var sinks render.Multi
	for _, name := range names {
		switch name {
		case "log":
			sinks = append(sinks, render.NewLogSink(logger.Named("render")))
		case "redis":
			client, err := r.redisClient(ctx, cfg.Redis)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			sinks = append(sinks, render.NewRedisSink(client, cfg.Redis.Channel, cfg.Redis.DialTimeout, logger))
		case "kafka":
			if len(cfg.Kafka.Brokers) == 0 {
				return nil, fmt.Errorf("kafka sink needs kafka.brokers")
			}
			k := render.NewKafkaSink(cfg.Kafka, logger)
			r.closers = append(r.closers, k.Close)
			sinks = append(sinks, k)
		default:
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

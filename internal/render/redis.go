package render

import (
	"context"
	"strings"
	"time"

	"klinefeed/internal/memorystore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSink publishes each frame on channelPrefix+SYMBOL.
type RedisSink struct {
	client        redis.Cmdable
	channelPrefix string
	timeout       time.Duration
	logger        *zap.Logger
}

func NewRedisSink(client redis.Cmdable, channelPrefix string, timeout time.Duration, logger *zap.Logger) *RedisSink {
	return &RedisSink{
		client:        client,
		channelPrefix: channelPrefix,
		timeout:       timeout,
		logger:        logger,
	}
}

func (s *RedisSink) Channel(symbol string) string {
	return s.channelPrefix + strings.ToUpper(symbol)
}

func (s *RedisSink) Render(symbol string, bars []memorystore.Bar) {
	data, err := NewFrame(symbol, bars).Marshal()
	if err != nil {
		s.logger.Warn("failed to encode frame", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.client.Publish(ctx, s.Channel(symbol), data).Err(); err != nil {
		s.logger.Warn("failed to publish frame", zap.String("channel", s.Channel(symbol)), zap.Error(err))
	}
}

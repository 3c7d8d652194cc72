package render

import (
	"context"
	"time"

	"klinefeed/config"
	"klinefeed/internal/memorystore"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each frame as one message keyed by symbol, so a symbol's
// frames stay ordered within a partition.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaSink builds an async writer; delivery errors are logged from the
// completion callback.
func NewKafkaSink(cfg config.KafkaConfig, logger *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver frames", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return newKafkaSink(w, cfg.WriteTimeout, logger)
}

func newKafkaSink(w messageWriter, timeout time.Duration, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, timeout: timeout, logger: logger}
}

func (s *KafkaSink) Render(symbol string, bars []memorystore.Bar) {
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

	msg := kafka.Message{
		Key:   []byte(symbol),
		Value: data,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("failed to write frame", zap.String("symbol", symbol), zap.Error(err))
	}
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

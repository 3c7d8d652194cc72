package render

import (
	"klinefeed/internal/memorystore"

	"go.uber.org/zap"
)

// LogSink writes a one-line summary of every render.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Render(symbol string, bars []memorystore.Bar) {
	if len(bars) == 0 {
		s.logger.Info("render", zap.String("symbol", symbol), zap.Int("bars", 0))
		return
	}
	last := bars[len(bars)-1]
	s.logger.Info("render",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Time("last_open_time", last.OpenTime),
		zap.Float64("open", last.Open),
		zap.Float64("high", last.High),
		zap.Float64("low", last.Low),
		zap.Float64("close", last.Close),
	)
}

package stream

import (
	"context"
	"errors"
	"time"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/binance"
	"klinefeed/pkg/storage"

	"go.uber.org/zap"
)

// Handler applies raw stream messages to a buffer, persisting and rendering
// the series whenever it changes.
type Handler struct {
	store       storage.Store
	sink        Sink
	saveTimeout time.Duration
	logger      *zap.Logger
}

func NewHandler(store storage.Store, sink Sink, saveTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		store:       store,
		sink:        sink,
		saveTimeout: saveTimeout,
		logger:      logger,
	}
}

// Handle decodes msg and upserts it into buf. A failed save is reported in the
// result but the series is still rendered.
func (h *Handler) Handle(ctx context.Context, buf *memorystore.SymbolBuffer, msg []byte) Result {
	bar, err := binance.Decode(msg)
	if errors.Is(err, binance.ErrNotKline) {
		return Result{Outcome: OutcomeRejected}
	}
	if err != nil {
		h.logger.Warn("failed to parse kline payload", zap.String("symbol", buf.Symbol()), zap.Error(err))
		return Result{Outcome: OutcomeMalformed}
	}

	var res Result
	switch buf.Upsert(bar) {
	case memorystore.Appended:
		res.Outcome = OutcomeAppended
	case memorystore.Replaced:
		res.Outcome = OutcomeReplaced
	default:
		h.logger.Debug("ignored out-of-order bar",
			zap.String("symbol", buf.Symbol()),
			zap.Time("open_time", bar.OpenTime),
		)
		return Result{Outcome: OutcomeIgnored}
	}

	bars := buf.Bars()
	if err := h.save(ctx, buf.Symbol(), bars); err != nil {
		h.logger.Warn("failed to persist snapshot", zap.String("symbol", buf.Symbol()), zap.Error(err))
		res.PersistErr = err
	}

	h.sink.Render(buf.Symbol(), bars)
	return res
}

func (h *Handler) save(ctx context.Context, symbol string, bars []memorystore.Bar) error {
	if h.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.saveTimeout)
		defer cancel()
	}
	return h.store.Save(ctx, symbol, bars)
}

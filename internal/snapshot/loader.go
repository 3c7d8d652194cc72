package snapshot

import (
	"context"
	"time"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/binance"
	"klinefeed/pkg/storage"

	"go.uber.org/zap"
)

// KlineFetcher returns recent bars from the exchange, oldest first.
type KlineFetcher interface {
	GetKlines(ctx context.Context, sub binance.Subscription, limit int) ([]memorystore.Bar, error)
}

// HistoryLoader produces the bars a freshly activated buffer starts from: the
// persisted snapshot, or, when that is empty and a Fetcher is set, the most
// recent bars from REST.
type HistoryLoader struct {
	Store   storage.Store
	Fetcher KlineFetcher // nil disables REST seeding
	Limit   int
	Timeout time.Duration // per store read; 0 means no extra deadline
	Logger  *zap.Logger
}

// Load reads the snapshot for sub.Symbol. Store failures are returned; REST
// failures are only logged because seeding is best effort.
func (l *HistoryLoader) Load(ctx context.Context, sub binance.Subscription) ([]memorystore.Bar, error) {
	bars, err := l.loadStored(ctx, sub.Symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 || l.Fetcher == nil {
		return bars, nil
	}

	limit := l.Limit
	if limit <= 0 {
		limit = memorystore.MaxBars
	}

	fetched, err := l.Fetcher.GetKlines(ctx, sub, limit)
	if err != nil {
		l.Logger.Warn("failed to seed history from REST", zap.Stringer("subscription", sub), zap.Error(err))
		return bars, nil
	}
	l.Logger.Info("seeded history from REST", zap.Stringer("subscription", sub), zap.Int("count", len(fetched)))
	return fetched, nil
}

func (l *HistoryLoader) loadStored(ctx context.Context, symbol string) ([]memorystore.Bar, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	return l.Store.Load(ctx, symbol)
}

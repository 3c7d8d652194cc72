package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/storage"
	"klinefeed/pkg/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu    sync.Mutex
	calls [][]memorystore.Bar
}

func (s *recordingSink) Render(_ string, bars []memorystore.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, bars)
}

type brokenStore struct{ memory.Store }

func (*brokenStore) Save(_ context.Context, symbol string, _ []memorystore.Bar) error {
	return storage.SaveError(symbol, errors.New("read-only"))
}

func kline(ms int64, close string) []byte {
	return []byte(fmt.Sprintf(`{"e":"kline","k":{"t":%d,"o":"1","h":"2","l":"0.5","c":%q}}`, ms, close))
}

// go test -v --run TestHandleLifecycle
func TestHandleLifecycle(t *testing.T) {
	store := memory.NewStore()
	sink := &recordingSink{}
	h := NewHandler(store, sink, 0, zap.NewNop())
	buf := memorystore.NewSymbolBuffer("ETH", memorystore.MaxBars)
	ctx := context.Background()

	assert.Equal(t, OutcomeAppended, h.Handle(ctx, buf, kline(1000, "1.1")).Outcome)
	assert.Equal(t, OutcomeReplaced, h.Handle(ctx, buf, kline(1000, "1.2")).Outcome)
	assert.Equal(t, OutcomeAppended, h.Handle(ctx, buf, kline(2000, "1.3")).Outcome)
	assert.Equal(t, OutcomeIgnored, h.Handle(ctx, buf, kline(1000, "9.9")).Outcome)
	assert.Equal(t, OutcomeRejected, h.Handle(ctx, buf, []byte(`{"result":null,"id":1}`)).Outcome)
	assert.Equal(t, OutcomeMalformed, h.Handle(ctx, buf, []byte(`{"k":{"t":3000}}`)).Outcome)

	bars := buf.Bars()
	require.Len(t, bars, 2)
	assert.Equal(t, 1.2, bars[0].Close)
	assert.Equal(t, 1.3, bars[1].Close)

	// three mutations -> three saves and three renders
	assert.Equal(t, 3, store.Saves())
	require.Len(t, sink.calls, 3)
	assert.Len(t, sink.calls[2], 2)

	persisted, err := store.Load(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, bars, persisted)
}

// go test -v --run TestHandlePersistFailureStillRenders
func TestHandlePersistFailureStillRenders(t *testing.T) {
	sink := &recordingSink{}
	h := NewHandler(&brokenStore{}, sink, 0, zap.NewNop())
	buf := memorystore.NewSymbolBuffer("BNB", memorystore.MaxBars)

	res := h.Handle(context.Background(), buf, kline(1000, "300"))
	assert.Equal(t, OutcomeAppended, res.Outcome)
	assert.ErrorIs(t, res.PersistErr, storage.ErrPersistence)
	assert.Len(t, sink.calls, 1)

	// the buffer keeps accepting updates
	res = h.Handle(context.Background(), buf, kline(2000, "301"))
	assert.Equal(t, OutcomeAppended, res.Outcome)
	assert.Equal(t, 2, buf.Len())
}

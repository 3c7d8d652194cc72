package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"klinefeed/internal/memorystore"
	"klinefeed/pkg/binance"
	"klinefeed/pkg/storage"
)

// fakeConn is a Connection driven by the test. With hang set, Close does not
// emit the terminal event until finish is called.
type fakeConn struct {
	sub     binance.Subscription
	gen     uint64
	openErr error
	hang    bool

	events     chan binance.Event
	closeOnce  sync.Once
	finishOnce sync.Once
	closed     chan struct{}
}

func (f *fakeConn) Open(context.Context) error {
	if f.openErr != nil {
		f.finish(binance.ReasonTransport, f.openErr)
		return f.openErr
	}
	return nil
}

func (f *fakeConn) Events() <-chan binance.Event { return f.events }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		if !f.hang {
			f.finish(binance.ReasonRequested, nil)
		}
	})
	return nil
}

func (f *fakeConn) send(payload string) {
	f.events <- binance.Event{Generation: f.gen, Payload: []byte(payload)}
}

func (f *fakeConn) finish(reason binance.CloseReason, err error) {
	f.finishOnce.Do(func() {
		f.events <- binance.Event{Generation: f.gen, Closed: &binance.Closed{Reason: reason, Err: err}}
		close(f.events)
	})
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	openErr error
	hang    bool
}

func (d *fakeDialer) dial(sub binance.Subscription, gen uint64) Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{
		sub:     sub,
		gen:     gen,
		openErr: d.openErr,
		hang:    d.hang,
		events:  make(chan binance.Event, 64),
		closed:  make(chan struct{}),
	}
	d.conns = append(d.conns, c)
	return c
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type renderCall struct {
	symbol string
	bars   []memorystore.Bar
}

type recordingSink struct {
	mu    sync.Mutex
	calls []renderCall
}

func (s *recordingSink) Render(symbol string, bars []memorystore.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, renderCall{symbol: symbol, bars: bars})
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *recordingSink) last() renderCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// failingStore fails every operation.
type failingStore struct{}

func (failingStore) Save(_ context.Context, symbol string, _ []memorystore.Bar) error {
	return storage.SaveError(symbol, errors.New("quota exceeded"))
}

func (failingStore) Load(_ context.Context, symbol string) ([]memorystore.Bar, error) {
	return nil, storage.LoadError(symbol, errors.New("corrupt"))
}

// storeLoader reads history straight from a Store.
type storeLoader struct{ store storage.Store }

func (l storeLoader) Load(ctx context.Context, sub binance.Subscription) ([]memorystore.Bar, error) {
	return l.store.Load(ctx, sub.Symbol)
}

func kline(ms int64, close float64) string {
	return fmt.Sprintf(`{"e":"kline","k":{"t":%d,"o":"1","h":"%g","l":"0.5","c":"%g"}}`, ms, close+1, close)
}

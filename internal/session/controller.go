// Package session owns the single active kline subscription: its connection,
// generation and buffer.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"klinefeed/internal/memorystore"
	"klinefeed/internal/stream"
	"klinefeed/pkg/binance"
	"klinefeed/pkg/storage"

	"go.uber.org/zap"
)

const (
	defaultCloseTimeout = 5 * time.Second
	terminationBuffer   = 16
)

// ErrHandshake wraps Activate errors caused by the connection failing to open.
var ErrHandshake = errors.New("stream handshake failed")

// Connection is a single-use stream subscription. binance.WSClient satisfies it.
type Connection interface {
	Open(ctx context.Context) error
	Events() <-chan binance.Event
	Close() error
}

// DialFunc creates an idle connection whose events carry generation.
type DialFunc func(sub binance.Subscription, generation uint64) Connection

// Loader returns the bars a new buffer starts from.
type Loader interface {
	Load(ctx context.Context, sub binance.Subscription) ([]memorystore.Bar, error)
}

type Options struct {
	MaxBars      int
	CloseTimeout time.Duration // how long to wait for the old connection's terminal event
	SaveTimeout  time.Duration
}

// Termination is the terminal event of the current generation's connection.
type Termination struct {
	Subscription binance.Subscription
	Generation   uint64
	Closed       binance.Closed
}

// Stats are cumulative message counters.
type Stats struct {
	Applied         uint64
	Ignored         uint64
	Rejected        uint64
	Malformed       uint64
	Stale           uint64
	PersistFailures uint64
}

type counters struct {
	applied, ignored, rejected, malformed, stale, persistFailures atomic.Uint64
}

// Controller switches the active subscription and applies its messages.
// Activate and Stop are serialized; message delivery runs on one pump
// goroutine per connection.
type Controller struct {
	dial    DialFunc
	loader  Loader
	handler *stream.Handler
	sink    stream.Sink
	opts    Options
	logger  *zap.Logger

	switchMu sync.Mutex
	conn     Connection
	pumpDone chan struct{}

	// bufMu guards the buffer swap and the generation check on delivery.
	bufMu      sync.Mutex
	generation atomic.Uint64
	buf        *memorystore.SymbolBuffer
	sub        binance.Subscription
	active     bool

	terminations chan Termination
	stats        counters
}

func NewController(dial DialFunc, loader Loader, store storage.Store, sink stream.Sink, opts Options, logger *zap.Logger) *Controller {
	if opts.MaxBars <= 0 {
		opts.MaxBars = memorystore.MaxBars
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	return &Controller{
		dial:         dial,
		loader:       loader,
		handler:      stream.NewHandler(store, sink, opts.SaveTimeout, logger),
		sink:         sink,
		opts:         opts,
		logger:       logger,
		terminations: make(chan Termination, terminationBuffer),
	}
}

// Activate makes {symbol, interval} the active subscription. Any previous
// connection is closed first and its late messages are discarded. A history
// load failure is logged and the buffer starts empty; a handshake failure is
// returned, leaving the loaded buffer active.
func (c *Controller) Activate(ctx context.Context, symbol, interval string) error {
	sub, err := binance.NewSubscription(symbol, interval)
	if err != nil {
		return err
	}

	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	gen := c.supersede()
	c.teardown(ctx)

	log := c.logger.With(zap.Stringer("subscription", sub), zap.Uint64("generation", gen))

	bars, err := c.loader.Load(ctx, sub)
	if err != nil {
		c.stats.persistFailures.Add(1)
		log.Error("failed to load snapshot, starting empty", zap.Error(err))
		bars = nil
	}

	buf := memorystore.NewSymbolBuffer(sub.Symbol, c.opts.MaxBars)
	if dropped := buf.Load(bars); dropped > 0 {
		log.Warn("dropped invalid snapshot entries", zap.Int("dropped", dropped))
	}

	c.bufMu.Lock()
	c.buf = buf
	c.sub = sub
	c.active = true
	c.bufMu.Unlock()

	if buf.Len() > 0 {
		c.sink.Render(sub.Symbol, buf.Bars())
	}
	log.Info("activated subscription", zap.Int("bars", buf.Len()))

	conn := c.dial(sub, gen)
	if err := conn.Open(ctx); err != nil {
		_ = conn.Close()
		go drain(conn)
		return fmt.Errorf("activate %s: %w: %w", sub, ErrHandshake, err)
	}

	done := make(chan struct{})
	c.conn = conn
	c.pumpDone = done
	go c.pump(sub, conn, done)
	return nil
}

// Stop closes the active connection without opening another. The last buffer
// stays readable through Bars.
func (c *Controller) Stop(ctx context.Context) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.supersede()
	c.teardown(ctx)

	c.bufMu.Lock()
	c.active = false
	c.bufMu.Unlock()
}

// Bars returns a copy of the active series.
func (c *Controller) Bars() []memorystore.Bar {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	if c.buf == nil {
		return nil
	}
	return c.buf.Bars()
}

// Subscription returns the active subscription; ok is false before the first
// Activate and after Stop.
func (c *Controller) Subscription() (binance.Subscription, bool) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return c.sub, c.active
}

func (c *Controller) Generation() uint64 { return c.generation.Load() }

// Terminations delivers terminal events of current connections. Events are
// dropped when nobody reads.
func (c *Controller) Terminations() <-chan Termination { return c.terminations }

func (c *Controller) Stats() Stats {
	return Stats{
		Applied:         c.stats.applied.Load(),
		Ignored:         c.stats.ignored.Load(),
		Rejected:        c.stats.rejected.Load(),
		Malformed:       c.stats.malformed.Load(),
		Stale:           c.stats.stale.Load(),
		PersistFailures: c.stats.persistFailures.Load(),
	}
}

// supersede bumps the generation. Holding bufMu makes the bump ordered with
// in-flight deliveries.
func (c *Controller) supersede() uint64 {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return c.generation.Add(1)
}

// teardown closes the current connection and waits for its pump to see the
// terminal event, giving up after CloseTimeout. Caller holds switchMu.
func (c *Controller) teardown(ctx context.Context) {
	if c.conn == nil {
		return
	}
	conn, done := c.conn, c.pumpDone
	c.conn, c.pumpDone = nil, nil

	_ = conn.Close()

	timer := time.NewTimer(c.opts.CloseTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("connection did not close in time, abandoning", zap.Duration("timeout", c.opts.CloseTimeout))
	case <-ctx.Done():
		c.logger.Warn("stopped waiting for connection close", zap.Error(ctx.Err()))
	}
}

func (c *Controller) pump(sub binance.Subscription, conn Connection, done chan struct{}) {
	defer close(done)

	for ev := range conn.Events() {
		if ev.Terminal() {
			c.terminated(sub, ev)
			continue
		}
		c.deliver(ev)
	}
}

func (c *Controller) deliver(ev binance.Event) {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()

	if ev.Generation != c.generation.Load() || c.buf == nil {
		c.stats.stale.Add(1)
		c.logger.Debug("dropped stale message", zap.Uint64("generation", ev.Generation))
		return
	}

	res := c.handler.Handle(context.Background(), c.buf, ev.Payload)
	switch res.Outcome {
	case stream.OutcomeAppended, stream.OutcomeReplaced:
		c.stats.applied.Add(1)
	case stream.OutcomeIgnored:
		c.stats.ignored.Add(1)
	case stream.OutcomeRejected:
		c.stats.rejected.Add(1)
	case stream.OutcomeMalformed:
		c.stats.malformed.Add(1)
	}
	if res.PersistErr != nil {
		c.stats.persistFailures.Add(1)
	}
}

func (c *Controller) terminated(sub binance.Subscription, ev binance.Event) {
	if ev.Generation != c.generation.Load() {
		return
	}

	t := Termination{Subscription: sub, Generation: ev.Generation, Closed: *ev.Closed}
	select {
	case c.terminations <- t:
	default:
		c.logger.Warn("termination dropped, no reader", zap.Stringer("subscription", sub))
	}
}

func drain(conn Connection) {
	for range conn.Events() {
	}
}

package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle state of a WSClient. Transitions only move forward:
// Idle -> Connecting -> Open -> Closed, or Connecting -> Closed on a failed handshake.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// CloseReason tells why a connection stopped.
type CloseReason int

const (
	ReasonRequested CloseReason = iota // Close was called
	ReasonTransport                    // dial, read or network failure
	ReasonProtocol                     // feed rejected the subscription or closed with a protocol code
)

func (r CloseReason) String() string {
	switch r {
	case ReasonRequested:
		return "requested"
	case ReasonTransport:
		return "transport_error"
	default:
		return "protocol_error"
	}
}

// Closed is the terminal notification of a connection.
type Closed struct {
	Reason CloseReason
	Err    error
}

// Event is one item of a connection's stream: a raw message while open, or the
// terminal Closed notification, which is always the last event on the channel.
type Event struct {
	Generation uint64
	Payload    []byte
	Closed     *Closed
}

// Terminal reports whether this is the final event of the stream.
func (e Event) Terminal() bool { return e.Closed != nil }

const (
	defaultEventBuffer = 256
	closeWriteTimeout  = time.Second
)

// WSOptions configures WSClient instances.
type WSOptions struct {
	URL              string // feed base URL, e.g. "wss://stream.binance.com:9443"
	Quote            string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables the read deadline
	EventBuffer      int
}

// WSClient is a single-use subscription to one kline stream.
type WSClient struct {
	id         string
	url        string
	stream     string
	sub        Subscription
	generation uint64
	opts       WSOptions
	logger     *zap.Logger

	state atomic.Int32

	mu   sync.Mutex
	conn *websocket.Conn

	events     chan Event
	closeReq   chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once
}

// NewWSClient creates an idle client for sub. Every event it emits carries generation.
func NewWSClient(opts WSOptions, sub Subscription, generation uint64, logger *zap.Logger) *WSClient {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	id := uuid.NewString()
	stream := sub.StreamName(opts.Quote)

	return &WSClient{
		id:         id,
		url:        strings.TrimRight(opts.URL, "/") + "/ws",
		stream:     stream,
		sub:        sub,
		generation: generation,
		opts:       opts,
		logger: logger.With(
			zap.String("conn_id", id),
			zap.String("stream", stream),
			zap.Uint64("generation", generation),
		),
		events:   make(chan Event, opts.EventBuffer),
		closeReq: make(chan struct{}),
	}
}

func (c *WSClient) ID() string                 { return c.id }
func (c *WSClient) Generation() uint64         { return c.generation }
func (c *WSClient) Subscription() Subscription { return c.sub }
func (c *WSClient) State() State               { return State(c.state.Load()) }

// Events returns the event stream. It must be drained until it is closed.
func (c *WSClient) Events() <-chan Event { return c.events }

// Open dials the feed, sends the SUBSCRIBE request for the stream and starts
// the reader. A client can be opened once.
func (c *WSClient) Open(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return fmt.Errorf("open %s: connection is %s", c.sub, c.State())
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		c.finish(Closed{Reason: ReasonTransport, Err: err})
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	req := SubscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{c.stream},
		ID:     1,
	}
	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		c.logger.Error("Failed to send subscription", zap.Error(err))
		c.finish(Closed{Reason: ReasonTransport, Err: err})
		return fmt.Errorf("subscribe %s: %w", c.stream, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	select {
	case <-c.closeReq:
		_ = conn.Close()
		c.finish(Closed{Reason: ReasonRequested})
		return fmt.Errorf("open %s: closed during handshake", c.sub)
	default:
	}

	c.state.Store(int32(StateOpen))
	c.logger.Info("WebSocket connected", zap.String("url", c.url))

	go c.listen(conn)
	return nil
}

// Close stops the connection. It is idempotent; the terminal event reports
// ReasonRequested unless the connection had already stopped for another reason.
func (c *WSClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeReq)

		if c.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
			c.finish(Closed{Reason: ReasonRequested})
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
			_ = conn.Close()
		}
	})
	return nil
}

func (c *WSClient) listen(conn *websocket.Conn) {
	defer conn.Close()

	for {
		if c.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.finish(c.classify(err))
			return
		}

		if apiErr := errorReply(msg); apiErr != nil {
			c.finish(Closed{Reason: ReasonProtocol, Err: apiErr})
			return
		}

		select {
		case c.events <- Event{Generation: c.generation, Payload: msg}:
		case <-c.closeReq:
			c.finish(Closed{Reason: ReasonRequested})
			return
		}
	}
}

// classify maps a read error to a close reason.
func (c *WSClient) classify(err error) Closed {
	select {
	case <-c.closeReq:
		return Closed{Reason: ReasonRequested}
	default:
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseProtocolError,
			websocket.CloseUnsupportedData,
			websocket.CloseInvalidFramePayloadData,
			websocket.ClosePolicyViolation,
			websocket.CloseMessageTooBig:
			return Closed{Reason: ReasonProtocol, Err: err}
		}
	}
	return Closed{Reason: ReasonTransport, Err: err}
}

// finish emits the terminal event exactly once and closes the stream.
func (c *WSClient) finish(closed Closed) {
	c.finishOnce.Do(func() {
		c.state.Store(int32(StateClosed))

		if closed.Reason == ReasonRequested {
			c.logger.Info("WebSocket closed", zap.Stringer("reason", closed.Reason))
		} else {
			c.logger.Warn("WebSocket closed", zap.Stringer("reason", closed.Reason), zap.Error(closed.Err))
		}

		c.events <- Event{Generation: c.generation, Closed: &closed}
		close(c.events)
	})
}

// errorReply returns the feed error carried by msg, if any.
func errorReply(msg []byte) *ErrorResponse {
	if !bytes.Contains(msg, []byte(`"error"`)) {
		return nil
	}
	var resp SubscribeResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil
	}
	return resp.Error
}

package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// newFeedServer runs handle for every websocket connection on /ws and returns
// the base URL to hand to WSOptions.
func newFeedServer(t *testing.T, handle func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(t, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func expectSubscribe(t *testing.T, conn *websocket.Conn, stream string) {
	t.Helper()
	var req SubscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		t.Errorf("read subscribe: %v", err)
		return
	}
	if req.Method != "SUBSCRIBE" || len(req.Params) != 1 || req.Params[0] != stream {
		t.Errorf("unexpected subscribe request: %+v", req)
	}
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectStreamEnd(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed stream after terminal event")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream not closed after terminal event")
	}
}

func newTestClient(url string, gen uint64) *WSClient {
	sub, _ := NewSubscription("ETH", "1m")
	return NewWSClient(WSOptions{
		URL:              url,
		Quote:            "USDT",
		HandshakeTimeout: 2 * time.Second,
	}, sub, gen, zap.NewNop())
}

// go test -v --run TestWSClientStreamsAndCloses
func TestWSClientStreamsAndCloses(t *testing.T) {
	url := newFeedServer(t, func(t *testing.T, conn *websocket.Conn) {
		expectSubscribe(t, conn, "ethusdt@kline_1m")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineMsg))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	c := newTestClient(url, 7)
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if c.State() != StateOpen {
		t.Fatalf("state = %s, want open", c.State())
	}

	first := nextEvent(t, c.Events())
	second := nextEvent(t, c.Events())
	if first.Terminal() || second.Terminal() {
		t.Fatal("unexpected terminal event")
	}
	if first.Generation != 7 || second.Generation != 7 {
		t.Errorf("generation = %d/%d, want 7", first.Generation, second.Generation)
	}
	if string(second.Payload) != klineMsg {
		t.Errorf("payload = %s", second.Payload)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonRequested {
		t.Fatalf("want requested terminal event, got %+v", ev)
	}
	expectStreamEnd(t, c.Events())

	// idempotent
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s, want closed", c.State())
	}
	if err := c.Open(context.Background()); err == nil {
		t.Error("reopening a closed client should fail")
	}
}

// go test -v --run TestWSClientErrorReply
func TestWSClientErrorReply(t *testing.T) {
	url := newFeedServer(t, func(t *testing.T, conn *websocket.Conn) {
		expectSubscribe(t, conn, "ethusdt@kline_1m")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":2,"msg":"Invalid request"},"id":1}`))
		_, _, _ = conn.ReadMessage()
	})

	c := newTestClient(url, 1)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonProtocol {
		t.Fatalf("want protocol terminal event, got %+v", ev)
	}
	if ev.Closed.Err == nil || !strings.Contains(ev.Closed.Err.Error(), "Invalid request") {
		t.Errorf("unexpected err: %v", ev.Closed.Err)
	}
	expectStreamEnd(t, c.Events())
	_ = c.Close()
}

// go test -v --run TestWSClientPolicyClose
func TestWSClientPolicyClose(t *testing.T) {
	url := newFeedServer(t, func(t *testing.T, conn *websocket.Conn) {
		expectSubscribe(t, conn, "ethusdt@kline_1m")
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many streams")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	})

	c := newTestClient(url, 1)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonProtocol {
		t.Fatalf("want protocol terminal event, got %+v", ev)
	}
}

// go test -v --run TestWSClientTransportDrop
func TestWSClientTransportDrop(t *testing.T) {
	url := newFeedServer(t, func(t *testing.T, conn *websocket.Conn) {
		expectSubscribe(t, conn, "ethusdt@kline_1m")
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineMsg))
		_ = conn.UnderlyingConn().Close()
	})

	c := newTestClient(url, 3)
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	if ev := nextEvent(t, c.Events()); ev.Terminal() {
		t.Fatalf("expected message before drop, got %+v", ev)
	}
	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonTransport {
		t.Fatalf("want transport terminal event, got %+v", ev)
	}
	if ev.Generation != 3 {
		t.Errorf("terminal generation = %d, want 3", ev.Generation)
	}
	expectStreamEnd(t, c.Events())
}

// go test -v --run TestWSClientHandshakeFailure
func TestWSClientHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient("ws"+strings.TrimPrefix(srv.URL, "http"), 1)
	if err := c.Open(context.Background()); err == nil {
		t.Fatal("expected handshake error")
	}
	if c.State() != StateClosed {
		t.Errorf("state = %s, want closed", c.State())
	}

	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonTransport {
		t.Fatalf("want transport terminal event, got %+v", ev)
	}
	expectStreamEnd(t, c.Events())

	if err := c.Close(); err != nil {
		t.Errorf("close after failure: %v", err)
	}
}

// go test -v --run TestWSClientCloseIdle
func TestWSClientCloseIdle(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:1", 1)
	_ = c.Close()

	ev := nextEvent(t, c.Events())
	if !ev.Terminal() || ev.Closed.Reason != ReasonRequested {
		t.Fatalf("want requested terminal event, got %+v", ev)
	}
	expectStreamEnd(t, c.Events())

	if err := c.Open(context.Background()); err == nil {
		t.Error("open after close should fail")
	}
}

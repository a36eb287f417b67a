package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamServer is a test websocket endpoint that records subscribe
// commands and lets tests push ticker messages to the client.
type streamServer struct {
	*httptest.Server

	mu         sync.Mutex
	conns      []*websocket.Conn
	subscribes []streamCommand
}

func newStreamServer(t *testing.T) *streamServer {
	t.Helper()

	ss := &streamServer{}
	ss.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		ss.mu.Lock()
		ss.conns = append(ss.conns, conn)
		ss.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd streamCommand
			if json.Unmarshal(data, &cmd) == nil && cmd.Cmd == "subscribe" {
				ss.mu.Lock()
				ss.subscribes = append(ss.subscribes, cmd)
				ss.mu.Unlock()
			}
		}
	}))
	t.Cleanup(ss.Close)
	return ss
}

func (ss *streamServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ss.URL, "http")
}

func (ss *streamServer) pushTicker(t *testing.T, update TickerUpdate) {
	t.Helper()

	payload, err := json.Marshal(update)
	if err != nil {
		t.Fatalf("marshal ticker: %v", err)
	}
	msg, err := json.Marshal(streamMessage{Type: "ticker", Msg: payload})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if len(ss.conns) == 0 {
		t.Fatal("no connected clients")
	}
	conn := ss.conns[len(ss.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write ticker: %v", err)
	}
}

func (ss *streamServer) subscribeCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.subscribes)
}

func testStreamConfig(url string) StreamConfig {
	cfg := DefaultStreamConfig()
	cfg.URL = url
	cfg.ReconnectEnabled = false
	cfg.HeartbeatInterval = 0
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStreamConnectAndClose(t *testing.T) {
	server := newStreamServer(t)

	var connected bool
	var mu sync.Mutex
	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{
		OnConnect: func() {
			mu.Lock()
			connected = true
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	if !stream.IsConnected() {
		t.Error("expected connected state")
	}
	mu.Lock()
	if !connected {
		t.Error("OnConnect not called")
	}
	mu.Unlock()

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if stream.State() != StreamClosed {
		t.Errorf("State() = %v, want %v", stream.State(), StreamClosed)
	}
}

func TestStreamConnectAfterCloseFails(t *testing.T) {
	server := newStreamServer(t)

	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{})
	stream.Close()

	if err := stream.Connect(context.Background()); err == nil {
		t.Error("expected error connecting a closed stream")
	}
}

func TestStreamSubscribeBeforeConnect(t *testing.T) {
	server := newStreamServer(t)

	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{})
	if err := stream.Subscribe("TENNIS-A", "TENNIS-B"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	waitFor(t, 2*time.Second, func() bool { return server.subscribeCount() == 1 })

	server.mu.Lock()
	cmd := server.subscribes[0]
	server.mu.Unlock()

	if len(cmd.Params.Channels) != 1 || cmd.Params.Channels[0] != "ticker" {
		t.Errorf("channels = %v, want [ticker]", cmd.Params.Channels)
	}
	if len(cmd.Params.MarketTickers) != 2 {
		t.Errorf("market tickers = %v, want 2 entries", cmd.Params.MarketTickers)
	}
}

func TestStreamDuplicateSubscribeSkipped(t *testing.T) {
	server := newStreamServer(t)

	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	if err := stream.Subscribe("TENNIS-A"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return server.subscribeCount() == 1 })

	// Same ticker again is a no-op.
	if err := stream.Subscribe("TENNIS-A"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := server.subscribeCount(); got != 1 {
		t.Errorf("subscribe commands = %d, want 1", got)
	}
}

func TestStreamTickerUpdates(t *testing.T) {
	server := newStreamServer(t)

	received := make(chan TickerUpdate, 1)
	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{
		OnTicker: func(u TickerUpdate) { received <- u },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	server.pushTicker(t, TickerUpdate{
		MarketTicker: "TENNIS-FINAL",
		YesBid:       48,
		YesAsk:       52,
		Price:        50,
	})

	select {
	case u := <-received:
		if u.MarketTicker != "TENNIS-FINAL" {
			t.Errorf("ticker = %q, want TENNIS-FINAL", u.MarketTicker)
		}
		if u.YesBid != 48 || u.YesAsk != 52 {
			t.Errorf("book = %d/%d, want 48/52", u.YesBid, u.YesAsk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no ticker update received")
	}

	q, ok := stream.Quote("TENNIS-FINAL")
	if !ok {
		t.Fatal("Quote() found nothing for TENNIS-FINAL")
	}
	if q.YesBid != 48 || q.YesAsk != 52 {
		t.Errorf("cached quote = %d/%d, want 48/52", q.YesBid, q.YesAsk)
	}

	if _, ok := stream.Quote("UNKNOWN"); ok {
		t.Error("Quote() returned data for an unknown ticker")
	}
}

func TestStreamIgnoresOtherMessageTypes(t *testing.T) {
	server := newStreamServer(t)

	var errCount int
	var mu sync.Mutex
	stream := NewStream(testStreamConfig(server.wsURL()), nil, StreamHandlers{
		OnError: func(err error) {
			mu.Lock()
			errCount++
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	server.mu.Lock()
	conn := server.conns[0]
	server.mu.Unlock()
	msg, _ := json.Marshal(streamMessage{Type: "subscribed", Msg: json.RawMessage(`{"sid":1}`)})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write message: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	if errCount != 0 {
		t.Errorf("OnError called %d times for a valid non-ticker message", errCount)
	}
	mu.Unlock()
}

func TestStreamReconnect(t *testing.T) {
	server := newStreamServer(t)

	cfg := testStreamConfig(server.wsURL())
	cfg.ReconnectEnabled = true
	cfg.ReconnectMinDelay = 20 * time.Millisecond
	cfg.ReconnectMaxDelay = 100 * time.Millisecond

	connects := make(chan struct{}, 4)
	stream := NewStream(cfg, nil, StreamHandlers{
		OnConnect: func() { connects <- struct{}{} },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer stream.Close()

	if err := stream.Subscribe("TENNIS-A"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	<-connects
	waitFor(t, 2*time.Second, func() bool { return server.subscribeCount() == 1 })

	// Drop the connection server-side; the stream should dial back in
	// and replay the subscription.
	server.mu.Lock()
	server.conns[0].Close()
	server.mu.Unlock()

	select {
	case <-connects:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not reconnect")
	}
	waitFor(t, 2*time.Second, func() bool { return server.subscribeCount() == 2 })
}

func TestStreamStateString(t *testing.T) {
	tests := []struct {
		state StreamState
		want  string
	}{
		{StreamDisconnected, "disconnected"},
		{StreamConnecting, "connecting"},
		{StreamConnected, "connected"},
		{StreamReconnecting, "reconnecting"},
		{StreamClosed, "closed"},
		{StreamState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("StreamState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultStreamURL is the production market-data websocket.
	DefaultStreamURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

	// DemoStreamURL is the demo exchange websocket.
	DemoStreamURL = "wss://demo-api.kalshi.co/trade-api/ws/v2"

	wsAuthPath = "/trade-api/ws/v2"
)

// StreamState represents the websocket connection state.
type StreamState int32

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TickerUpdate is one market's top-of-book push. Prices are cents.
type TickerUpdate struct {
	MarketTicker string `json:"market_ticker"`
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	Price        int64  `json:"price"`
	Volume       int64  `json:"volume"`
}

// StreamHandlers contains callback functions for stream events.
type StreamHandlers struct {
	OnTicker      func(TickerUpdate)
	OnConnect     func()
	OnDisconnect  func(err error)
	OnError       func(err error)
	OnStateChange func(old, new StreamState)
}

// StreamConfig holds websocket stream configuration.
type StreamConfig struct {
	URL string

	// Reconnect settings
	ReconnectEnabled     bool
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int // 0 = unlimited

	// Heartbeat settings
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// DefaultStreamConfig returns a config with sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:               DefaultStreamURL,
		ReconnectEnabled:  true,
		ReconnectMinDelay: 1 * time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}

type streamCommand struct {
	ID     int                `json:"id"`
	Cmd    string             `json:"cmd"`
	Params streamCommandParam `json:"params"`
}

type streamCommandParam struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type streamMessage struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// Stream is a market-data websocket subscriber for the ticker channel.
// It reconnects with exponential backoff and replays subscriptions on
// reconnect. Quotes are cached per ticker for synchronous reads.
type Stream struct {
	config   StreamConfig
	signer   *Signer
	handlers StreamHandlers

	conn   *websocket.Conn
	connMu sync.RWMutex
	state  int32 // atomic StreamState

	closeCh   chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	tickers map[string]bool
	quotes  map[string]TickerUpdate
	cmdSeq  int

	reconnectAttempts int
	lastError         error
	lastErrorMu       sync.RWMutex
}

// NewStream creates a market-data stream. The signer authenticates the
// connection and is required by the exchange.
func NewStream(config StreamConfig, signer *Signer, handlers StreamHandlers) *Stream {
	return &Stream{
		config:   config,
		signer:   signer,
		handlers: handlers,
		closeCh:  make(chan struct{}),
		tickers:  make(map[string]bool),
		quotes:   make(map[string]TickerUpdate),
	}
}

// Connect establishes the websocket connection and resubscribes to any
// tickers added before connecting.
func (s *Stream) Connect(ctx context.Context) error {
	if s.getState() == StreamClosed {
		return errors.New("stream is closed")
	}
	s.setState(StreamConnecting)

	header := http.Header{}
	if s.signer != nil {
		auth, err := s.signer.Headers(http.MethodGet, wsAuthPath, time.Now())
		if err != nil {
			s.setState(StreamDisconnected)
			return fmt.Errorf("sign connect: %w", err)
		}
		for k, v := range auth {
			header.Set(k, v)
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.config.URL, header)
	if err != nil {
		s.setState(StreamDisconnected)
		s.setLastError(err)
		return fmt.Errorf("dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.setState(StreamConnected)
	s.reconnectAttempts = 0

	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}

	go s.readLoop()
	if s.config.HeartbeatInterval > 0 {
		go s.heartbeatLoop()
	}

	return s.resubscribe()
}

// Close closes the stream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StreamClosed)
		close(s.closeCh)

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return nil
}

// Subscribe adds tickers to the ticker-channel subscription. Safe to
// call before Connect; the subscription is sent on connect.
func (s *Stream) Subscribe(tickers ...string) error {
	s.mu.Lock()
	fresh := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !s.tickers[t] {
			s.tickers[t] = true
			fresh = append(fresh, t)
		}
	}
	s.mu.Unlock()

	if len(fresh) == 0 || s.getState() != StreamConnected {
		return nil
	}
	return s.sendSubscribe(fresh)
}

// Quote returns the last pushed top of book for a ticker.
func (s *Stream) Quote(ticker string) (TickerUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[ticker]
	return q, ok
}

// State returns the current connection state.
func (s *Stream) State() StreamState {
	return s.getState()
}

// IsConnected returns true if the stream is connected.
func (s *Stream) IsConnected() bool {
	return s.getState() == StreamConnected
}

// LastError returns the last error that occurred.
func (s *Stream) LastError() error {
	s.lastErrorMu.RLock()
	defer s.lastErrorMu.RUnlock()
	return s.lastError
}

// --- Internal methods ---

func (s *Stream) getState() StreamState {
	return StreamState(atomic.LoadInt32(&s.state))
}

func (s *Stream) setState(st StreamState) {
	old := StreamState(atomic.SwapInt32(&s.state, int32(st)))
	if old != st && s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(old, st)
	}
}

func (s *Stream) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err
	s.lastErrorMu.Unlock()
}

func (s *Stream) sendSubscribe(tickers []string) error {
	s.mu.Lock()
	s.cmdSeq++
	cmd := streamCommand{
		ID:  s.cmdSeq,
		Cmd: "subscribe",
		Params: streamCommandParam{
			Channels:      []string{"ticker"},
			MarketTickers: tickers,
		},
	}
	s.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return errors.New("not connected")
	}
	if s.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Stream) resubscribe() error {
	s.mu.RLock()
	tickers := make([]string, 0, len(s.tickers))
	for t := range s.tickers {
		tickers = append(tickers, t)
	}
	s.mu.RUnlock()

	if len(tickers) == 0 {
		return nil
	}
	return s.sendSubscribe(tickers)
}

func (s *Stream) readLoop() {
	defer func() {
		if s.getState() != StreamClosed {
			s.handleDisconnect(s.LastError())
		}
	}()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()
		if conn == nil {
			return
		}

		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setLastError(err)
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
			return
		}

		s.handleMessage(data)
	}
}

func (s *Stream) handleMessage(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("bad stream message: %w", err))
		}
		return
	}
	if msg.Type != "ticker" {
		return
	}

	var update TickerUpdate
	if err := json.Unmarshal(msg.Msg, &update); err != nil {
		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("bad ticker payload: %w", err))
		}
		return
	}

	s.mu.Lock()
	s.quotes[update.MarketTicker] = update
	s.mu.Unlock()

	if s.handlers.OnTicker != nil {
		s.handlers.OnTicker(update)
	}
}

func (s *Stream) heartbeatLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			if s.getState() != StreamConnected {
				continue
			}

			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()
			if conn == nil {
				continue
			}

			deadline := time.Now().Add(s.config.HeartbeatTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.setLastError(err)
				if s.handlers.OnError != nil {
					s.handlers.OnError(fmt.Errorf("heartbeat failed: %w", err))
				}
			}
		}
	}
}

func (s *Stream) handleDisconnect(err error) {
	s.setState(StreamDisconnected)

	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(err)
	}

	if s.config.ReconnectEnabled && s.getState() != StreamClosed {
		go s.reconnect()
	}
}

func (s *Stream) reconnect() {
	s.setState(StreamReconnecting)

	for {
		if s.getState() == StreamClosed {
			return
		}

		s.reconnectAttempts++
		if s.config.ReconnectMaxAttempts > 0 && s.reconnectAttempts > s.config.ReconnectMaxAttempts {
			s.setState(StreamDisconnected)
			if s.handlers.OnError != nil {
				s.handlers.OnError(fmt.Errorf("max reconnect attempts (%d) exceeded", s.config.ReconnectMaxAttempts))
			}
			return
		}

		delay := s.config.ReconnectMinDelay * time.Duration(1<<uint(s.reconnectAttempts-1))
		if delay > s.config.ReconnectMaxDelay || delay <= 0 {
			delay = s.config.ReconnectMaxDelay
		}

		select {
		case <-s.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.Connect(ctx)
		cancel()
		if err == nil {
			return
		}

		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("reconnect attempt %d failed: %w", s.reconnectAttempts, err))
		}
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a WebSocketTransport. Grounded on
// original_source/src/mcp/websocket_transport.rs's WebSocketConfig.
type WebSocketConfig struct {
	URL               string
	Headers           http.Header
	ConnectionTimeout time.Duration
	PingInterval      time.Duration
	PongTimeout       time.Duration
	MaxMessageSize    int64
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// DefaultWebSocketConfig mirrors the Rust implementation's defaults.
func DefaultWebSocketConfig(rawURL string) WebSocketConfig {
	return WebSocketConfig{
		URL:               rawURL,
		ConnectionTimeout: 30 * time.Second,
		PingInterval:      30 * time.Second,
		PongTimeout:       10 * time.Second,
		MaxMessageSize:    16 * 1024 * 1024,
		ReconnectAttempts: 3,
		ReconnectDelay:    5 * time.Second,
	}
}

type wsConnState int

const (
	wsDisconnected wsConnState = iota
	wsConnecting
	wsConnected
	wsReconnecting
	wsClosed
)

// WebSocketTransport speaks JSON-RPC over a persistent WebSocket connection,
// reconnecting on failure up to ReconnectAttempts. Grounded on
// original_source/src/mcp/websocket_transport.rs's connection-management
// task, re-expressed as a single goroutine driving an explicit state machine
// instead of a tokio::select! loop.
type WebSocketTransport struct {
	cfg WebSocketConfig

	outbox chan []byte
	inbox  chan InboundMessage
	stop   chan struct{}
	done   chan struct{}

	mu        sync.Mutex
	connected bool
	sent      atomic.Uint64
	recv      atomic.Uint64
	errCount  atomic.Uint64
	lastActivity atomic.Int64
}

// NewWebSocketTransport validates cfg.URL and starts the background
// connection-management loop. The first connection attempt happens
// asynchronously; callers relying on an immediate connection should poll
// Status().
func NewWebSocketTransport(cfg WebSocketConfig) (*WebSocketTransport, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("mcp: invalid websocket url %q: %w", cfg.URL, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("mcp: invalid websocket scheme %q, must be ws or wss", parsed.Scheme)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 16 * 1024 * 1024
	}

	t := &WebSocketTransport{
		cfg:    cfg,
		outbox: make(chan []byte, 100),
		inbox:  make(chan InboundMessage, 100),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	t.lastActivity.Store(time.Now().UnixNano())

	go t.run()
	return t, nil
}

func (t *WebSocketTransport) run() {
	defer close(t.done)

	state := wsDisconnected
	attempts := 0

	for {
		switch state {
		case wsDisconnected, wsReconnecting:
			t.setConnected(false)
			state = wsConnecting

			dialer := websocket.Dialer{HandshakeTimeout: t.cfg.ConnectionTimeout}
			conn, _, err := dialer.Dial(t.cfg.URL, t.cfg.Headers)
			if err != nil {
				t.errCount.Add(1)
				attempts++
				if attempts > t.cfg.ReconnectAttempts {
					state = wsClosed
					break
				}
				state = wsReconnecting
				select {
				case <-time.After(t.cfg.ReconnectDelay):
				case <-t.stop:
					state = wsClosed
				}
				continue
			}

			attempts = 0
			t.setConnected(true)
			state = t.serve(conn)

		case wsClosed:
			return

		default:
			state = wsClosed
		}
	}
}

// serve runs the read/write/ping loop for one live connection, returning the
// next state: Reconnecting once the connection drops, Closed once a shutdown
// is requested. Reconnection attempts are counted in run.
func (t *WebSocketTransport) serve(conn *websocket.Conn) wsConnState {
	defer conn.Close()
	conn.SetReadLimit(t.cfg.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		t.lastActivity.Store(time.Now().UnixNano())
		return nil
	})

	readErr := make(chan error, 1)
	readMsg := make(chan []byte, 16)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			readMsg <- data
		}
	}()

	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-readMsg:
			t.recv.Add(1)
			t.lastActivity.Store(time.Now().UnixNano())
			t.handleInbound(data)

		case err := <-readErr:
			_ = err
			return wsReconnecting

		case data := <-t.outbox:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.errCount.Add(1)
				return wsReconnecting
			}
			t.sent.Add(1)
			t.lastActivity.Store(time.Now().UnixNano())

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.PongTimeout)); err != nil {
				t.errCount.Add(1)
				return wsReconnecting
			}

		case <-t.stop:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return wsClosed
		}
	}
}

func (t *WebSocketTransport) handleInbound(data []byte) {
	var envelope struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.errCount.Add(1)
		t.deliver(InboundMessage{Err: fmt.Errorf("mcp: invalid JSON in websocket message: %w", err)})
		return
	}

	if envelope.Method != "" {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.errCount.Add(1)
			t.deliver(InboundMessage{Err: err})
			return
		}
		t.deliver(InboundMessage{Notification: &req})
		return
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.errCount.Add(1)
		t.deliver(InboundMessage{Err: err})
		return
	}
	t.deliver(InboundMessage{Response: &resp})
}

func (t *WebSocketTransport) deliver(msg InboundMessage) {
	select {
	case t.inbox <- msg:
	default:
		t.errCount.Add(1)
	}
}

func (t *WebSocketTransport) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}

// Send enqueues req for the connection-management loop to write. Message
// size is checked against MaxMessageSize before enqueuing.
func (t *WebSocketTransport) Send(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if int64(len(data)) > t.cfg.MaxMessageSize {
		return fmt.Errorf("mcp: message size (%d bytes) exceeds maximum (%d bytes)", len(data), t.cfg.MaxMessageSize)
	}

	select {
	case t.outbox <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return fmt.Errorf("mcp: websocket transport closed")
	}
}

func (t *WebSocketTransport) Inbound() <-chan InboundMessage { return t.inbox }

func (t *WebSocketTransport) Status() TransportStatus {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	return TransportStatus{
		Type:         "websocket",
		Connected:    connected,
		MessagesSent: t.sent.Load(),
		MessagesRecv: t.recv.Load(),
		LastActivity: time.Unix(0, t.lastActivity.Load()),
		ErrorCount:   t.errCount.Load(),
	}
}

// Close requests a graceful close and waits for the connection-management
// goroutine to exit.
func (t *WebSocketTransport) Close() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	<-t.done
	t.setConnected(false)
	return nil
}

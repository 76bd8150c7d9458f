package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebSocketTransportRejectsInvalidScheme(t *testing.T) {
	_, err := NewWebSocketTransport(DefaultWebSocketConfig("http://example.com"))
	assert.Error(t, err)
}

func TestNewWebSocketTransportRejectsMalformedURL(t *testing.T) {
	_, err := NewWebSocketTransport(DefaultWebSocketConfig("://not-a-url"))
	assert.Error(t, err)
}

func TestNewWebSocketTransportAcceptsZeroValueConfig(t *testing.T) {
	cfg := WebSocketConfig{URL: "ws://example.com"}
	_, err := NewWebSocketTransport(cfg)
	require.NoError(t, err)
}

// echoServer upgrades every connection and echoes back each received frame
// verbatim, simulating an MCP server that mirrors requests as responses.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketTransportSendAndReceiveRoundTrip(t *testing.T) {
	srv := echoServer(t)
	cfg := DefaultWebSocketConfig(wsURL(srv))
	transport, err := NewWebSocketTransport(cfg)
	require.NoError(t, err)
	defer transport.Close()

	require.Eventually(t, func() bool {
		return transport.Status().Connected
	}, 2*time.Second, 10*time.Millisecond, "transport must connect to the test server")

	req, err := NewRequest("req-1", "tools/list", nil)
	require.NoError(t, err)
	require.NoError(t, transport.Send(context.Background(), req))

	select {
	case msg := <-transport.Inbound():
		require.NoError(t, msg.Err)
		require.NotNil(t, msg.Notification, "the echoed frame carries a method field, so it decodes as a notification/request")
		assert.Equal(t, "tools/list", msg.Notification.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed message")
	}
}

func TestWebSocketTransportSendRejectsOversizedMessage(t *testing.T) {
	srv := echoServer(t)
	cfg := DefaultWebSocketConfig(wsURL(srv))
	cfg.MaxMessageSize = 10
	transport, err := NewWebSocketTransport(cfg)
	require.NoError(t, err)
	defer transport.Close()

	req, err := NewRequest("req-1", "tools/list_with_a_very_long_method_name_to_exceed_the_limit", nil)
	require.NoError(t, err)
	err = transport.Send(context.Background(), req)
	assert.Error(t, err)
}

func TestWebSocketTransportCloseIsIdempotentAndDisconnects(t *testing.T) {
	srv := echoServer(t)
	transport, err := NewWebSocketTransport(DefaultWebSocketConfig(wsURL(srv)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return transport.Status().Connected
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.False(t, transport.Status().Connected)
}

func TestWebSocketTransportReconnectExhaustionReportsDisconnected(t *testing.T) {
	cfg := DefaultWebSocketConfig("ws://127.0.0.1:1/unreachable")
	cfg.ReconnectAttempts = 0
	cfg.ReconnectDelay = time.Millisecond
	cfg.ConnectionTimeout = 200 * time.Millisecond

	transport, err := NewWebSocketTransport(cfg)
	require.NoError(t, err)
	defer transport.Close()

	require.Never(t, func() bool {
		return transport.Status().Connected
	}, 500*time.Millisecond, 20*time.Millisecond, "an unreachable endpoint with no reconnect attempts must never report connected")
}

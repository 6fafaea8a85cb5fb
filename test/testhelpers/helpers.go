// Package testhelpers provides common utilities for testing the chat relay.
//
// It contains reusable helpers shared across integration tests: starting a
// relay service backed by an httptest server, dialing WebSocket clients with
// the right Origin header, and reading broadcast frames.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexuschat/relay/internal/server"
)

// StartRelay starts a relay Service behind an httptest server and returns
// the service, the test server, and the WebSocket URL. Everything is torn
// down via t.Cleanup.
func StartRelay(t *testing.T, cfg server.Config, completer server.Completer) (*server.Service, *httptest.Server, string) {
	t.Helper()

	svc := server.NewServiceWithCompleter(cfg, completer)
	svc.Start()
	t.Cleanup(func() { _ = svc.Shutdown(2 * time.Second) })

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)

	return svc, ts, WebSocketURL(ts.URL)
}

// StartServerFor starts an httptest server for an already-running service.
// Unlike StartRelay, the caller owns the service's shutdown.
func StartServerFor(t *testing.T, svc *server.Service) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// WebSocketURL converts an httptest server base URL into the relay's
// WebSocket endpoint URL.
func WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// ConnectWebSocket dials the relay's WebSocket endpoint with the given
// Origin header and registers cleanup for the connection.
func ConnectWebSocket(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WaitForClientCount polls the hub until it reports want registered clients
// or the deadline passes.
func WaitForClientCount(t *testing.T, hub *server.Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d registered clients, got %d", want, hub.ClientCount())
}

// ReadMessages reads n broadcast messages from conn, one frame per message.
func ReadMessages(t *testing.T, conn *websocket.Conn, n int, timeout time.Duration) []string {
	t.Helper()

	var messages []string
	deadline := time.Now().Add(timeout)

	for len(messages) < n {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("Failed to set read deadline: %v", err)
		}
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read message %d of %d: %v", len(messages)+1, n, err)
		}
		messages = append(messages, string(payload))
	}
	return messages
}

// ExpectNoMessage asserts that no frame arrives on conn within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %q", payload)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// Package testhelpers provides common utilities for exercising the relay
// over real WebSocket connections in integration tests.
package testhelpers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/timrolsh/chat-relay/internal/server"
)

const readTimeout = 3 * time.Second

// WebSocketURL converts an httptest server URL into the relay's ws endpoint.
func WebSocketURL(t *testing.T, serverURL string) string {
	t.Helper()
	if !strings.HasPrefix(serverURL, "http") {
		t.Fatalf("unexpected test server URL %q", serverURL)
	}
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// Dial opens a WebSocket connection to the relay.
func Dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Send writes one envelope on the connection.
func Send(t *testing.T, conn *websocket.Conn, env server.Envelope) {
	t.Helper()
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("Failed to send %s envelope: %v", env.Kind, err)
	}
}

// Receive reads the next envelope, failing the test on timeout.
func Receive(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read envelope: %v", err)
	}
	return env
}

// WaitForKind reads envelopes until one of the wanted kind arrives,
// discarding everything else (stray welcomes, exits from earlier subtests).
func WaitForKind(t *testing.T, conn *websocket.Conn, kind server.Kind) server.Envelope {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		env := Receive(t, conn)
		if env.Kind == kind {
			return env
		}
	}
	t.Fatalf("No %s envelope arrived within %s", kind, readTimeout)
	return server.Envelope{}
}

// JoinAs dials the relay, joins with the given name, and waits for the
// joiner's own welcome so later assertions start from a settled room.
func JoinAs(t *testing.T, wsURL, name string) *websocket.Conn {
	t.Helper()
	conn := Dial(t, wsURL)
	Send(t, conn, server.Envelope{Kind: server.KindJoin, Name: name})
	for {
		env := WaitForKind(t, conn, server.KindWelcome)
		if env.Name == name {
			return conn
		}
	}
}

// ExpectClosed asserts that the connection's read side fails, which is how a
// kicked or disconnected client observes its fate.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		var env server.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
	}
}

// Package server manages individual client sessions: the connection handle,
// the set-once username, and the serialized outbound path every producer
// (the session's own dispatcher and other sessions' broadcasts) writes through.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single outbound frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// fails. Expiry is handled exactly like any other transport error.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second
)

// wire is the slice of *websocket.Conn the session needs. Tests substitute
// an in-memory implementation.
type wire interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is the server-side state for one connected client. The username is
// empty until a join is processed; a session with an empty username is
// registered but invisible to rosters and broadcasts.
type Session struct {
	id   uuid.UUID
	conn wire
	addr string
	log  *slog.Logger

	writeMu sync.Mutex
	closed  bool

	userMu   sync.RWMutex
	username string

	limiter *rateLimiter
}

// NewSession wraps an accepted connection. The rate limiter parameters come
// from the active configuration.
func NewSession(conn wire, addr string, log *slog.Logger) *Session {
	cfg := currentConfig()
	id := uuid.New()
	return &Session{
		id:      id,
		conn:    conn,
		addr:    addr,
		log:     log.With("session", id.String(), "addr", addr),
		limiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
	}
}

// ID returns the session's identity, stable for its lifetime.
func (s *Session) ID() uuid.UUID { return s.id }

// Addr returns the remote address the session was accepted from.
func (s *Session) Addr() string { return s.addr }

// Username returns the joined name, or the empty string before join.
func (s *Session) Username() string {
	s.userMu.RLock()
	defer s.userMu.RUnlock()
	return s.username
}

// Joined reports whether a join has been processed for this session.
func (s *Session) Joined() bool {
	return s.Username() != ""
}

// SetUsername records the join name. It succeeds exactly once; later calls
// return ErrAlreadyJoined and leave the name untouched.
func (s *Session) SetUsername(name string) error {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if s.username != "" {
		return fmt.Errorf("%w: %q keeps %q", ErrAlreadyJoined, name, s.username)
	}
	s.username = name
	return nil
}

// Send serializes the envelope and writes it as one text frame. The write
// mutex keeps concurrent producers from interleaving frames on the
// connection. Delivery is best effort; a nil return does not mean the peer
// has read anything.
func (s *Session) Send(e Envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", e.Kind, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s envelope: %w", e.Kind, err)
	}
	return nil
}

// ping keeps the connection alive between chat traffic.
func (s *Session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// allowChat applies the per-session rate limit to inbound chat traffic.
func (s *Session) allowChat() bool {
	return s.limiter == nil || s.limiter.allow()
}

// Close releases the connection handle. It is idempotent and safe to call
// concurrently with an in-flight Send; a Send that loses the race fails with
// ErrSessionClosed.
func (s *Session) Close() {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return
	}
	s.closed = true
	s.writeMu.Unlock()

	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("closing connection", "error", err)
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}

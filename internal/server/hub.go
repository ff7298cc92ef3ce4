// Package server coordinates client registration, message dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns the session registry and runs the per-connection dispatch loop.
// Each accepted connection gets one goroutine that reads, interprets, and
// answers messages until the session reaches its terminal state.
type Hub struct {
	registry *Registry
	log      *slog.Logger

	// joinMu makes the duplicate-name check and the username assignment
	// atomic across concurrent joins.
	joinMu sync.Mutex

	wg sync.WaitGroup
}

// NewHub creates a Hub with an empty registry.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		registry: NewRegistry(),
		log:      log,
	}
}

var hub = NewHub(slog.Default())

// GetHub returns the global hub instance for shutdown coordination.
func GetHub() *Hub {
	return hub
}

// SetLogger replaces the hub's logger. Called once at startup, before any
// connection is accepted.
func (h *Hub) SetLogger(log *slog.Logger) {
	h.log = log
}

// Registry exposes the session registry, mainly for tests and shutdown.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// ServeSession registers the session and runs its dispatch loop until quit,
// kick, or transport error. Cleanup runs exactly once, from this goroutine,
// whichever way the loop ends.
func (h *Hub) ServeSession(s *Session) {
	h.wg.Add(1)
	defer h.wg.Done()

	h.registry.Register(s)
	h.log.Info("session connected", "session", s.ID(), "addr", s.Addr())

	stop := make(chan struct{})
	go h.keepalive(s, stop)

	defer func() {
		close(stop)
		h.cleanup(s)
	}()

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			h.logReadEnd(s, err)
			return
		}

		env, err := DecodeEnvelope(frame)
		if err != nil {
			// Malformed traffic never kills the session.
			h.log.Warn("ignoring invalid message", "session", s.ID(), "error", err)
			continue
		}

		if h.dispatch(s, env) {
			return
		}
	}
}

// dispatch handles one decoded envelope against the session's current state.
// It returns true when the loop should exit.
func (h *Hub) dispatch(s *Session, env Envelope) bool {
	if env.Kind == KindQuit {
		h.log.Info("session quit", "session", s.ID(), "user", s.Username())
		return true
	}

	if env.Kind == KindJoin {
		h.handleJoin(s, env)
		return false
	}

	// Everything past this point requires a joined session. The first
	// message on a connection must be a join; anything else is logged and
	// skipped without transitioning.
	if !s.Joined() {
		h.log.Warn("ignoring message before join",
			"session", s.ID(), "kind", env.Kind, "error", ErrNotJoined)
		return false
	}

	switch env.Kind {
	case KindChat:
		if !s.allowChat() {
			h.log.Warn("rate limit exceeded; discarding chat",
				"session", s.ID(), "user", s.Username())
			return false
		}
		h.handleChat(s, env)
		return false
	case KindListRequest:
		return h.reply(s, NewListResponse(h.registry.SnapshotUsernames()))
	case KindKick:
		return h.handleKick(s, env)
	default:
		h.log.Warn("unhandled message kind", "session", s.ID(), "kind", env.Kind)
		return false
	}
}

// handleJoin assigns the username and announces the newcomer. A name already
// held by a joined session is rejected with a denied reply; the session stays
// in its pre-join state and may try another name. A second join on a joined
// session is a protocol violation and is ignored.
func (h *Hub) handleJoin(s *Session, env Envelope) {
	if s.Joined() {
		h.log.Warn("ignoring repeated join",
			"session", s.ID(), "user", s.Username(), "error", ErrAlreadyJoined)
		return
	}

	h.joinMu.Lock()
	if h.registry.HasUsername(env.Name) {
		h.joinMu.Unlock()
		h.log.Info("rejecting join", "session", s.ID(), "name", env.Name, "error", ErrNameTaken)
		h.reply(s, NewDenied())
		return
	}
	if err := s.SetUsername(env.Name); err != nil {
		h.joinMu.Unlock()
		h.log.Warn("ignoring repeated join", "session", s.ID(), "error", err)
		return
	}
	h.joinMu.Unlock()

	h.log.Info("user joined", "session", s.ID(), "user", env.Name)

	// The joiner hears its own welcome, so the client can tell "I joined"
	// from "someone else joined" by comparing names.
	h.broadcast(NewWelcome(env.Name), nil)
}

// handleChat relays a chat. Public chats reach every joined session including
// the sender. Private chats reach the named recipient, plus an echo to the
// sender so its client can render the outgoing message; a missing recipient
// drops the message without an error to the sender.
func (h *Hub) handleChat(s *Session, env Envelope) {
	out := NewChat(s.Username(), env.Recipient, env.Text)

	if env.Public() {
		h.broadcast(out, nil)
		return
	}

	target := h.registry.FindByUsername(env.Recipient)
	if target == nil {
		h.log.Info("dropping chat for unknown recipient",
			"session", s.ID(), "user", s.Username(), "recipient", env.Recipient)
		return
	}

	if err := target.Send(out); err != nil {
		h.log.Warn("private chat delivery failed",
			"recipient", target.Username(), "error", err)
	}
	if target != s {
		if err := s.Send(out); err != nil {
			h.log.Warn("private chat echo failed",
				"user", s.Username(), "error", err)
		}
	}
}

// handleKick enforces the admin check and ejects the target. The kicking
// handler only notifies the victim and closes its connection; the victim's
// own handler observes the closed transport and performs the single
// unregister and exit broadcast. It returns true when the issuer kicked
// itself, since its own connection is then closed.
func (h *Hub) handleKick(s *Session, env Envelope) bool {
	cfg := currentConfig()
	if s.Username() != cfg.AdminName {
		h.log.Info("denying kick",
			"session", s.ID(), "user", s.Username(), "target", env.Target, "error", ErrNotAdmin)
		return h.reply(s, NewDenied())
	}

	target := h.registry.FindByUsername(env.Target)
	if target == nil {
		h.log.Info("kick target not found", "target", env.Target)
		return false
	}

	h.log.Info("kicking user", "target", env.Target, "issuer", s.Username())
	if err := target.Send(NewKickNotice(env.Target, s.Username())); err != nil {
		h.log.Warn("kick notice delivery failed", "target", env.Target, "error", err)
	}
	target.Close()

	return target == s
}

// reply sends a direct response on the requesting session's own stream. A
// failed write there is this connection's transport error, so it is treated
// as an implicit quit: reply returns true and the dispatch loop exits.
func (h *Hub) reply(s *Session, env Envelope) bool {
	if err := s.Send(env); err != nil {
		h.log.Warn("direct reply failed",
			"session", s.ID(), "kind", env.Kind, "error", err)
		return true
	}
	return false
}

// broadcast fans an envelope out to every joined session except excluded.
// Per-recipient failures are isolated: they are logged and never abort the
// fan-out or surface on the broadcasting connection.
func (h *Hub) broadcast(env Envelope, excluded *Session) {
	h.registry.ForEachJoined(excluded, func(recipient *Session) error {
		if err := recipient.Send(env); err != nil {
			h.log.Warn("broadcast delivery failed",
				"kind", env.Kind, "recipient", recipient.Username(), "error", err)
		}
		return nil
	})
}

// cleanup runs once per session when its dispatch loop exits: remove from the
// registry, tell the remaining room, release the connection.
func (h *Hub) cleanup(s *Session) {
	h.registry.Unregister(s)

	if name := s.Username(); name != "" {
		h.broadcast(NewExit(name), s)
		h.log.Info("user left", "session", s.ID(), "user", name)
	}

	s.Close()
}

// keepalive pings the peer until the session ends. A failed ping closes the
// connection, which unblocks the dispatch loop's pending read.
func (h *Hub) keepalive(s *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				if !errors.Is(err, ErrSessionClosed) && !isExpectedCloseError(err) {
					h.log.Warn("keepalive ping failed", "session", s.ID(), "error", err)
				}
				s.Close()
				return
			}
		}
	}
}

// logReadEnd records why a dispatch loop stopped reading.
func (h *Hub) logReadEnd(s *Session, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		h.log.Warn("message exceeded read limit", "session", s.ID())
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		h.log.Info("session disconnected", "session", s.ID(), "user", s.Username())
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		h.log.Info("connection closed", "session", s.ID(), "user", s.Username())
	default:
		h.log.Warn("read error", "session", s.ID(), "error", err)
	}
}

// Shutdown closes every live connection and waits for the dispatch loops to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("shutting down hub")

	for _, s := range h.registry.snapshotAll() {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// Package server keeps the shared registry of live sessions. The registry is
// the only state shared across connection handlers; every membership
// operation runs under one mutex, and iteration hands out snapshots so that
// network writes never happen while the lock is held.
package server

import (
	"sync"

	"github.com/samber/lo"
)

// Registry is a concurrency-safe, ordered collection of sessions. Order is
// registration order, which is also the roster order.
type Registry struct {
	mu       sync.RWMutex
	sessions []*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register inserts a session. The session is visible to rosters and
// broadcasts only once it joins.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

// Unregister removes a session by identity. Removing a session that is
// already gone is a no-op, which makes the quit-then-error cleanup race
// harmless.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, candidate := range r.sessions {
		if candidate == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered sessions, joined or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SnapshotUsernames returns the usernames of joined sessions in registration
// order. Exclusion of the requester is a client-side presentation rule, so
// the snapshot always contains everyone.
func (r *Registry) SnapshotUsernames() []string {
	joined := r.snapshotJoined(nil)
	return lo.Map(joined, func(s *Session, _ int) string {
		return s.Username()
	})
}

// FindByUsername returns the first joined session carrying the name, or nil.
func (r *Registry) FindByUsername(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if username := s.Username(); username != "" && username == name {
			return s
		}
	}
	return nil
}

// HasUsername reports whether any joined session already carries the name.
func (r *Registry) HasUsername(name string) bool {
	return r.FindByUsername(name) != nil
}

// ForEachJoined applies fn to every joined session except excluded (pass nil
// to exclude nobody). fn runs outside the registry lock, so a slow or failing
// recipient never stalls membership changes; a non-nil error from fn is the
// caller's signal to log and continue, never to abort the iteration.
func (r *Registry) ForEachJoined(excluded *Session, fn func(*Session) error) []error {
	var errs []error
	for _, s := range r.snapshotJoined(excluded) {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (r *Registry) snapshotJoined(excluded *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s == excluded || !s.Joined() {
			continue
		}
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// snapshotAll returns every registered session, joined or not. Used at
// shutdown to close live connections.
func (r *Registry) snapshotAll() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Session(nil), r.sessions...)
}

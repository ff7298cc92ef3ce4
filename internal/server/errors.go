// Package server defines the sentinel errors shared across the relay. The
// split mirrors how failures are handled: protocol violations keep the
// connection alive, transport errors end the session, authorization failures
// are answered with a denied reply.
package server

import "fmt"

var (
	// ErrSessionClosed is returned by Session.Send once the underlying
	// connection has been released.
	ErrSessionClosed = fmt.Errorf("session closed")

	// ErrAlreadyJoined is returned when a session that already carries a
	// username processes a second join.
	ErrAlreadyJoined = fmt.Errorf("username already set")

	// ErrNameTaken is returned when a join names a username that another
	// registered session already holds.
	ErrNameTaken = fmt.Errorf("username already in use")

	// ErrNotJoined marks messages that arrived before the session joined.
	ErrNotJoined = fmt.Errorf("session has not joined")

	// ErrUnknownKind marks an envelope whose kind is outside the protocol.
	ErrUnknownKind = fmt.Errorf("unknown message kind")

	// ErrNotAdmin marks a kick attempted by a session other than the admin.
	ErrNotAdmin = fmt.Errorf("kick requires the admin username")
)

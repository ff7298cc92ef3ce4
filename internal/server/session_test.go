package server

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionUsernameIsSetOnce(t *testing.T) {
	req := require.New(t)
	s := newBareSession(t)

	req.Empty(s.Username())
	req.False(s.Joined())

	req.NoError(s.SetUsername("alice"))
	req.Equal("alice", s.Username())
	req.True(s.Joined())

	err := s.SetUsername("bob")
	req.ErrorIs(err, ErrAlreadyJoined)
	req.Equal("alice", s.Username())
}

func TestSessionSendWritesOneFrame(t *testing.T) {
	req := require.New(t)
	fw := newFakeWire()
	s := NewSession(fw, "127.0.0.1:0", discardLogger())

	req.NoError(s.Send(NewWelcome("alice")))

	envs := fw.received(t)
	req.Len(envs, 1)
	req.Equal(KindWelcome, envs[0].Kind)
	req.Equal("alice", envs[0].Name)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	fw := newFakeWire()
	s := NewSession(fw, "127.0.0.1:0", discardLogger())

	s.Close()
	s.Close()
	req.True(fw.isClosed())
}

func TestSessionSendAfterCloseFails(t *testing.T) {
	req := require.New(t)
	fw := newFakeWire()
	s := NewSession(fw, "127.0.0.1:0", discardLogger())

	s.Close()
	err := s.Send(NewWelcome("alice"))
	req.ErrorIs(err, ErrSessionClosed)
}

func TestSessionConcurrentSendsAndClose(t *testing.T) {
	req := require.New(t)
	fw := newFakeWire()
	s := NewSession(fw, "127.0.0.1:0", discardLogger())

	// Sends racing a close must either complete or fail cleanly.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Send(NewExit("alice"))
		}()
	}
	s.Close()
	wg.Wait()

	req.True(fw.isClosed())
	err := s.Send(NewExit("alice"))
	req.ErrorIs(err, ErrSessionClosed)
}

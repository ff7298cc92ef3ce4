package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWire is an in-memory wire implementation. Frames pushed into in are
// returned from ReadMessage; frames written by the session are captured for
// assertions. Close unblocks a pending read the way a closed socket does.
type fakeWire struct {
	in chan []byte

	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	failWrites bool

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		in:      make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeWire) ReadMessage() (int, []byte, error) {
	select {
	case frame, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return websocket.TextMessage, frame, nil
	case <-f.closeCh:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeWire) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failWrites {
		return errors.New("use of closed network connection")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeWire) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeWire) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWire) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.closeCh)
	})
	return nil
}

func (f *fakeWire) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeWire) setFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

// push feeds a client envelope to the session's read loop.
func (f *fakeWire) push(t *testing.T, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	f.in <- data
}

// pushRaw feeds an arbitrary frame to the read loop.
func (f *fakeWire) pushRaw(frame []byte) {
	f.in <- frame
}

// received decodes every frame the session wrote so far.
func (f *fakeWire) received(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	envs := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		envs = append(envs, env)
	}
	return envs
}

// lastOfKind returns the most recent received envelope of the kind. Frames
// from concurrent broadcasts interleave freely, so assertions pick out the
// kind they care about instead of relying on overall order.
func (f *fakeWire) lastOfKind(t *testing.T, kind Kind) (Envelope, bool) {
	t.Helper()
	envs := f.received(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Kind == kind {
			return envs[i], true
		}
	}
	return Envelope{}, false
}

// kindCount counts received envelopes of one kind.
func (f *fakeWire) kindCount(t *testing.T, kind Kind) int {
	t.Helper()
	n := 0
	for _, env := range f.received(t) {
		if env.Kind == kind {
			n++
		}
	}
	return n
}

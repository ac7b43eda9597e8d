package relay

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// fakeTransport records writes and blocks reads until closed
type fakeTransport struct {
	mu      sync.Mutex
	written [][]byte

	writes    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		writes: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() ([]byte, error) {
	<-f.closed
	return nil, io.EOF
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	select {
	case <-f.closed:
		return io.ErrClosedPipe
	default:
	}
	msg := append([]byte(nil), data...)
	f.mu.Lock()
	f.written = append(f.written, msg)
	f.mu.Unlock()
	f.writes <- msg
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "fake:0" }
func (f *fakeTransport) Kind() string       { return "fake" }

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, w := range f.written {
		out = append(out, string(w))
	}
	return out
}

func (f *fakeTransport) nextWrite(t *testing.T) string {
	t.Helper()
	select {
	case w := <-f.writes:
		return string(w)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a write")
		return ""
	}
}

var testEpoch = time.Date(2024, 11, 5, 18, 30, 0, 0, time.UTC)

// newTestSession adds a fresh session to reg without starting its pump
func newTestSession(t *testing.T, reg *Registry, sendBuffer int) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	s := newSession(ft, testEpoch, sendBuffer)
	reg.Add(s)
	t.Cleanup(s.Close)
	return s, ft
}

func newTestPlayer(t *testing.T, reg *Registry, name string) (*Session, string) {
	t.Helper()
	s, _ := newTestSession(t, reg, 8)
	id, err := reg.RegisterRole(s, RolePlayer, name)
	require.NoError(t, err)
	return s, id
}

func newTestSpectator(t *testing.T, reg *Registry) (*Session, *fakeTransport) {
	t.Helper()
	s, ft := newTestSession(t, reg, 8)
	_, err := reg.RegisterRole(s, RoleSpectator, "")
	require.NoError(t, err)
	return s, ft
}

func newFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(testEpoch)
}

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playerState(playerID string, seq uint64, payload string) PlayerState {
	return PlayerState{PlayerID: playerID, Seq: seq, Payload: []byte(payload)}
}

func TestSessionPushStateKeepsLatest(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	_, idA := newTestPlayer(t, reg, "a")
	watcher, _ := newTestSpectator(t, reg)
	require.NoError(t, reg.SetWatchTarget(watcher, idA))

	assert.True(t, watcher.PushState(playerState(idA, 1, "one")))
	assert.True(t, watcher.PushState(playerState(idA, 3, "three")))
	assert.False(t, watcher.PushState(playerState(idA, 2, "two")), "older than pending")

	state, ok := watcher.takePending()
	require.True(t, ok)
	assert.Equal(t, uint64(3), state.Seq)

	_, ok = watcher.takePending()
	assert.False(t, ok)

	assert.False(t, watcher.PushState(playerState(idA, 3, "three")), "already delivered")
	assert.True(t, watcher.PushState(playerState(idA, 4, "four")))
}

func TestSessionPushStateFiltersTarget(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	player, idA := newTestPlayer(t, reg, "a")
	_, idB := newTestPlayer(t, reg, "b")
	watcher, _ := newTestSpectator(t, reg)

	assert.False(t, watcher.PushState(playerState(idA, 1, "a1")), "not watching anyone")
	assert.False(t, player.PushState(playerState(idA, 1, "a1")), "players never receive pushes")

	require.NoError(t, reg.SetWatchTarget(watcher, idA))
	assert.False(t, watcher.PushState(playerState(idB, 1, "b1")))
	assert.True(t, watcher.PushState(playerState(idA, 5, "a5")))

	// Retargeting drops the pending state of the previous player
	require.NoError(t, reg.SetWatchTarget(watcher, idB))
	_, ok := watcher.takePending()
	assert.False(t, ok)

	assert.False(t, watcher.PushState(playerState(idA, 6, "a6")))
	assert.True(t, watcher.PushState(playerState(idB, 1, "b1")))
}

func TestSessionWritePumpOrder(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	_, idA := newTestPlayer(t, reg, "a")
	watcher, ft := newTestSpectator(t, reg)
	require.NoError(t, reg.SetWatchTarget(watcher, idA))

	require.NoError(t, watcher.Send([]byte("ack")))
	require.True(t, watcher.PushState(playerState(idA, 1, "state")))

	go watcher.writePump()

	assert.Equal(t, "ack", ft.nextWrite(t))
	assert.Equal(t, "state", ft.nextWrite(t))
}

func TestSessionCloseGracefullyFlushesControl(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	s, ft := newTestSession(t, reg, 4)

	require.NoError(t, s.Send([]byte("first")))
	require.NoError(t, s.Send([]byte("second")))

	go s.writePump()
	s.CloseGracefully()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	assert.Equal(t, []string{"first", "second"}, ft.Written())
	assert.ErrorIs(t, s.Send([]byte("late")), ErrSessionClosed)
}

func TestSessionSendBufferFull(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	s, _ := newTestSession(t, reg, 1)

	require.NoError(t, s.Send([]byte("one")))
	assert.ErrorIs(t, s.Send([]byte("two")), ErrSendBufferFull)
	assert.True(t, s.Closed())
	<-s.Done()
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "unset", RoleUnset.String())
	assert.Equal(t, "player", RolePlayer.String())
	assert.Equal(t, "spectator", RoleSpectator.String())
}

// gatedTransport signals each write and holds it until released
type gatedTransport struct {
	*fakeTransport
	started chan string
	release chan struct{}
}

func (g *gatedTransport) WriteMessage(data []byte) error {
	g.started <- string(data)
	<-g.release
	return g.fakeTransport.WriteMessage(data)
}

func TestSessionRetargetDuringWriteKeepsAckAsBoundary(t *testing.T) {
	reg := NewRegistry(newFakeClock())
	_, idA := newTestPlayer(t, reg, "a")
	_, idB := newTestPlayer(t, reg, "b")

	gt := &gatedTransport{
		fakeTransport: newFakeTransport(),
		started:       make(chan string, 4),
		release:       make(chan struct{}),
	}
	watcher := newSession(gt, testEpoch, 8)
	reg.Add(watcher)
	t.Cleanup(watcher.Close)
	_, err := reg.RegisterRole(watcher, RoleSpectator, "")
	require.NoError(t, err)
	require.NoError(t, reg.SetWatchTarget(watcher, idA))

	go watcher.writePump()

	require.True(t, watcher.PushState(playerState(idA, 1, "a1")))
	assert.Equal(t, "a1", <-gt.started)

	// The pump holds a1 while the spectator switches to b
	require.NoError(t, reg.SetWatchTarget(watcher, idB))
	assert.False(t, watcher.PushState(playerState(idA, 2, "a2")))
	require.NoError(t, watcher.Send([]byte("ack")))
	require.True(t, watcher.PushState(playerState(idB, 1, "b1")))

	close(gt.release)
	gt.nextWrite(t)
	gt.nextWrite(t)
	gt.nextWrite(t)
	assert.Equal(t, []string{"a1", "ack", "b1"}, gt.Written())
}

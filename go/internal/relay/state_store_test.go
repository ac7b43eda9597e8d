package relay

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameState(x float64) protocol.SendGameState {
	raw := fmt.Sprintf(`{"command":"sendGameState","player":{"positionX":%g,"positionY":393,"sizeX":80,"sizeY":10,"life":3,"score":0},"balls":[]}`, x)
	return protocol.SendGameState{
		Player: protocol.PlayerSnapshot{PositionX: x, PositionY: 393, SizeX: 80, SizeY: 10, Life: 3},
		Balls:  []protocol.Ball{},
		Raw:    []byte(raw),
	}
}

func TestStateStoreLastWriteWins(t *testing.T) {
	clock := newFakeClock()
	store := NewStateStore(clock)

	_, ok := store.Get("1")
	assert.False(t, ok)

	first := store.Put("1", gameState(100))
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, testEpoch, first.ReceivedAt)

	clock.Advance(time.Second)
	second := store.Put("1", gameState(200))
	assert.Equal(t, uint64(2), second.Seq)

	got, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, 200.0, got.Player.PositionX)
	assert.Equal(t, second.Payload, got.Payload)
	assert.Equal(t, testEpoch.Add(time.Second), got.ReceivedAt)
	assert.Equal(t, 1, store.Len())
}

func TestStateStorePlayersAreIndependent(t *testing.T) {
	store := NewStateStore(newFakeClock())

	store.Put("1", gameState(1))
	store.Put("1", gameState(2))
	b := store.Put("2", gameState(3))

	assert.Equal(t, uint64(1), b.Seq)

	a, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, 2.0, a.Player.PositionX)
	assert.Equal(t, 2, store.Len())
}

func TestStateStoreConcurrentWriters(t *testing.T) {
	store := NewStateStore(newFakeClock())

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(player string) {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				store.Put(player, gameState(float64(i)))
			}
		}(fmt.Sprint(p))
	}
	wg.Wait()

	for p := 0; p < 8; p++ {
		got, ok := store.Get(fmt.Sprint(p))
		require.True(t, ok)
		assert.Equal(t, uint64(100), got.Seq)
		assert.Equal(t, 100.0, got.Player.PositionX)
	}
}

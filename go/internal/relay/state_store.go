package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brickrelay/go/internal/relay/protocol"
)

// PlayerState is the most recent state submitted by one player
type PlayerState struct {
	PlayerID string                  `json:"player_id"`
	Seq      uint64                  `json:"seq"`
	Player   protocol.PlayerSnapshot `json:"player"`
	Balls    []protocol.Ball         `json:"balls"`
	// Payload is the sendGameState message exactly as the player sent it
	Payload    json.RawMessage `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// StateStore keeps the latest state per player. Writers for one player are
// serialised on that player's entry only; readers never lock an entry.
type StateStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]*stateEntry
}

type stateEntry struct {
	mu     sync.Mutex
	seq    uint64
	latest atomic.Pointer[PlayerState]
}

// NewStateStore creates an empty store
func NewStateStore(clock clockwork.Clock) *StateStore {
	return &StateStore{
		clock:   clock,
		entries: make(map[string]*stateEntry),
	}
}

// Put replaces the player's state and returns the stored record
func (s *StateStore) Put(playerID string, update protocol.SendGameState) PlayerState {
	entry := s.entry(playerID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.seq++
	state := &PlayerState{
		PlayerID:   playerID,
		Seq:        entry.seq,
		Player:     update.Player,
		Balls:      update.Balls,
		Payload:    update.Raw,
		ReceivedAt: s.clock.Now(),
	}
	entry.latest.Store(state)
	return *state
}

// Get returns the latest state, or false if the player never submitted one
func (s *StateStore) Get(playerID string) (PlayerState, bool) {
	s.mu.RLock()
	entry, ok := s.entries[playerID]
	s.mu.RUnlock()
	if !ok {
		return PlayerState{}, false
	}

	state := entry.latest.Load()
	if state == nil {
		return PlayerState{}, false
	}
	return *state, true
}

// Len returns how many players have a stored state
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *StateStore) entry(playerID string) *stateEntry {
	s.mu.RLock()
	entry, ok := s.entries[playerID]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[playerID]; ok {
		return entry
	}
	entry = &stateEntry{}
	s.entries[playerID] = entry
	return entry
}

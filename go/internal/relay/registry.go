package relay

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// PlayerInfo describes a connected player
type PlayerInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Spectators   int       `json:"spectators"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SpectatorInfo describes a connected spectator
type SpectatorInfo struct {
	ConnectionID string    `json:"connection_id"`
	Watching     string    `json:"watching,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// RegistryStats is a point-in-time count of sessions by role
type RegistryStats struct {
	Sessions   int `json:"sessions"`
	Unassigned int `json:"unassigned"`
	Players    int `json:"players"`
	Spectators int `json:"spectators"`
	KnownIDs   int `json:"known_player_ids"`
}

// Registry tracks every open session, every player identity handed out during
// this run and, per player, the spectators watching it.
//
// Lock order: Registry.mu, then playerEntry.mu, then Session.mu. Session.mu is
// never held while taking a playerEntry lock.
type Registry struct {
	clock clockwork.Clock

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	players  map[string]*playerEntry
	order    []string
	nextID   uint64
}

type playerEntry struct {
	id           string
	name         string
	registeredAt time.Time
	// nil once the player disconnected; guarded by Registry.mu
	session *Session

	mu       sync.RWMutex
	watchers map[*Session]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:    clock,
		sessions: make(map[*Session]struct{}),
		players:  make(map[string]*playerEntry),
	}
}

// Add tracks a freshly accepted session with no role
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// RegisterRole commits s to role. Players get a fresh identity, returned to
// the caller; spectators get an empty string.
func (r *Registry) RegisterRole(s *Session, role Role, name string) (string, error) {
	if role != RolePlayer && role != RoleSpectator {
		return "", fmt.Errorf("register role %s: %w", role, ErrProtocolViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s]; !ok {
		return "", ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	if s.role != RoleUnset {
		return "", fmt.Errorf("already registered as %s: %w", s.role, ErrDuplicateRole)
	}

	s.role = role
	if role != RolePlayer {
		return "", nil
	}

	r.nextID++
	id := strconv.FormatUint(r.nextID, 10)
	if name == "" {
		name = "player " + id
	}

	r.players[id] = &playerEntry{
		id:           id,
		name:         name,
		registeredAt: r.clock.Now(),
		session:      s,
		watchers:     make(map[*Session]struct{}),
	}
	r.order = append(r.order, id)

	s.playerID = id
	s.playerName = name
	return id, nil
}

// SetWatchTarget points spectator s at playerID, moving it out of its previous
// bucket. The player must have registered at some point during this run but
// does not need to be connected.
func (r *Registry) SetWatchTarget(s *Session, playerID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.sessions[s]; !ok {
		return ErrSessionClosed
	}

	target, ok := r.players[playerID]
	if !ok {
		return fmt.Errorf("player %q: %w", playerID, ErrUnknownPlayer)
	}

	s.mu.Lock()
	role, previous, closed := s.role, s.watching, s.closed
	s.mu.Unlock()

	if closed {
		return ErrSessionClosed
	}
	if role != RoleSpectator {
		return fmt.Errorf("watch as %s: %w", role, ErrRoleMismatch)
	}

	// From here on pushes for the previous player are rejected by the session.
	// A state the pump already took is still written, ahead of the ack.
	s.retarget(playerID)

	if previous != "" && previous != playerID {
		if old, ok := r.players[previous]; ok {
			old.removeWatcher(s)
		}
	}
	target.addWatcher(s)
	return nil
}

// Deregister forgets s. For a player it returns the spectators that were
// watching it; the player's identity stays known so it can still be targeted.
// Calling Deregister twice is harmless.
func (r *Registry) Deregister(s *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s]; !ok {
		return nil
	}
	delete(r.sessions, s)

	s.mu.Lock()
	role, playerID, watching := s.role, s.playerID, s.watching
	s.mu.Unlock()

	switch role {
	case RolePlayer:
		entry, ok := r.players[playerID]
		if !ok || entry.session != s {
			return nil
		}
		entry.session = nil
		return entry.snapshotWatchers()

	case RoleSpectator:
		if entry, ok := r.players[watching]; ok {
			entry.removeWatcher(s)
		}
	}
	return nil
}

// Watchers returns the spectators currently indexed under playerID
func (r *Registry) Watchers(playerID string) []*Session {
	r.mu.RLock()
	entry, ok := r.players[playerID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return entry.snapshotWatchers()
}

// Player returns the live session of a connected player
func (r *Registry) Player(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.players[playerID]
	if !ok || entry.session == nil {
		return nil, false
	}
	return entry.session, true
}

// KnownPlayer reports whether playerID was ever handed out
func (r *Registry) KnownPlayer(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[playerID]
	return ok
}

// ListPlayers returns connected players in registration order
func (r *Registry) ListPlayers() []PlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]PlayerInfo, 0, len(r.order))
	for _, id := range r.order {
		entry := r.players[id]
		if entry.session == nil {
			continue
		}
		entry.mu.RLock()
		watchers := len(entry.watchers)
		entry.mu.RUnlock()

		players = append(players, PlayerInfo{
			ID:           entry.id,
			Name:         entry.name,
			Spectators:   watchers,
			RegisteredAt: entry.registeredAt,
		})
	}
	return players
}

// ListSpectators returns every connected spectator
func (r *Registry) ListSpectators() []SpectatorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var spectators []SpectatorInfo
	for s := range r.sessions {
		s.mu.Lock()
		if s.role == RoleSpectator {
			spectators = append(spectators, SpectatorInfo{
				ConnectionID: s.ID,
				Watching:     s.watching,
				ConnectedAt:  s.ConnectedAt,
			})
		}
		s.mu.Unlock()
	}
	return spectators
}

// Stats counts sessions by role
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Sessions: len(r.sessions),
		KnownIDs: len(r.players),
	}
	for s := range r.sessions {
		s.mu.Lock()
		switch s.role {
		case RolePlayer:
			stats.Players++
		case RoleSpectator:
			stats.Spectators++
		default:
			stats.Unassigned++
		}
		s.mu.Unlock()
	}
	return stats
}

// CloseAll closes every open session, used on shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (e *playerEntry) addWatcher(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watchers[s] = struct{}{}
}

func (e *playerEntry) removeWatcher(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.watchers, s)
}

func (e *playerEntry) snapshotWatchers() []*Session {
	e.mu.RLock()
	defer e.mu.RUnlock()

	watchers := make([]*Session, 0, len(e.watchers))
	for s := range e.watchers {
		watchers = append(watchers, s)
	}
	return watchers
}

package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Role is the classification a session commits to on first contact
type Role int

const (
	RoleUnset Role = iota
	RolePlayer
	RoleSpectator
)

func (r Role) String() string {
	switch r {
	case RolePlayer:
		return "player"
	case RoleSpectator:
		return "spectator"
	default:
		return "unset"
	}
}

// Session is one open client connection. Role and watch target are written
// only by the Registry; the transport is written only by the session's write
// pump.
type Session struct {
	ID          string
	ConnectedAt time.Time

	transport Transport

	mu         sync.Mutex
	role       Role
	playerID   string
	playerName string
	watching   string
	closed     bool

	// Latest state waiting for the pump, plus the sequence of the last state
	// written for the current watch target.
	pending      *PlayerState
	deliveredSeq uint64

	control     chan []byte
	wake        chan struct{}
	closing     chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	closingOnce sync.Once
}

func newSession(t Transport, connectedAt time.Time, sendBuffer int) *Session {
	return &Session{
		ID:          uuid.New().String(),
		ConnectedAt: connectedAt,
		transport:   t,
		control:     make(chan []byte, sendBuffer),
		wake:        make(chan struct{}, 1),
		closing:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Role returns the declared role
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// PlayerID returns the identity assigned at registration, empty for non-players
func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// PlayerName returns the display name of a player session
func (s *Session) PlayerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerName
}

// Watching returns the player a spectator currently follows
func (s *Session) Watching() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watching
}

// Closed reports whether the session stopped accepting outbound messages
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once the transport has been torn down
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues a control message (response, player list, brick update). A peer
// that lets its queue fill up is disconnected.
func (s *Session) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	select {
	case s.control <- data:
		s.mu.Unlock()
		return nil
	default:
	}
	s.mu.Unlock()

	log.Warn().
		Str("connection_id", s.ID).
		Msg("connection send buffer full, closing connection")
	s.Close()
	return ErrSendBufferFull
}

// PushState offers a player state to a spectator. It is dropped when the
// session is gone, follows another player, or already has something newer.
// Only the most recent undelivered state is kept.
func (s *Session) PushState(state PlayerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.role != RoleSpectator || s.watching != state.PlayerID {
		return false
	}
	if state.Seq <= s.deliveredSeq {
		return false
	}
	if s.pending != nil && state.Seq <= s.pending.Seq {
		return false
	}

	s.pending = &state
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// retarget must be called with the Registry holding the player tables. It
// drops any pending state of the previous target, but a state the write pump
// has already taken is still written. That write always lands before the
// watch acknowledgment queued after retarget returns, so clients treat the
// ack as the switch point.
func (s *Session) retarget(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watching == playerID {
		return
	}
	s.watching = playerID
	s.pending = nil
	s.deliveredSeq = 0
}

func (s *Session) takePending() (PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.PlayerID != s.watching {
		s.pending = nil
		return PlayerState{}, false
	}
	state := *s.pending
	s.pending = nil
	s.deliveredSeq = state.Seq
	return state, true
}

// CloseGracefully stops accepting outbound messages and lets the pump flush
// what is already queued before the transport is closed.
func (s *Session) CloseGracefully() {
	s.closingOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.closing)
	})
}

// Close tears the transport down immediately. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()

		close(s.done)
		if err := s.transport.Close(); err != nil {
			log.Debug().Err(err).Str("connection_id", s.ID).Msg("closing transport")
		}
	})
}

// writePump is the only writer of the transport. Control messages are written
// before pending state so acknowledgments keep their order relative to pushes.
func (s *Session) writePump() {
	defer s.Close()

	for {
		if !s.flushControl() {
			return
		}

		select {
		case <-s.done:
			return
		case <-s.closing:
			s.flushControl()
			return
		case data := <-s.control:
			if !s.write(data) {
				return
			}
		case <-s.wake:
			// Replies queued before this push go out first
			if !s.flushControl() {
				return
			}
			state, ok := s.takePending()
			if !ok {
				continue
			}
			if !s.write(state.Payload) {
				return
			}
		}
	}
}

// flushControl writes every control message queued right now
func (s *Session) flushControl() bool {
	for {
		select {
		case data := <-s.control:
			if !s.write(data) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *Session) write(data []byte) bool {
	if err := s.transport.WriteMessage(data); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", s.ID).
			Msg("failed to write message")
		return false
	}
	return true
}

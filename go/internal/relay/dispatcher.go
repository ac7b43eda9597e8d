package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Dispatcher fans player states out to the spectators watching them
type Dispatcher struct {
	registry  *Registry
	metrics   MetricsCollector
	publisher StatePublisher
}

// NewDispatcher creates a dispatcher. A nil publisher disables mirroring.
func NewDispatcher(registry *Registry, metrics MetricsCollector, publisher StatePublisher) *Dispatcher {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	if publisher == nil {
		publisher = NoOpPublisher{}
	}
	return &Dispatcher{
		registry:  registry,
		metrics:   metrics,
		publisher: publisher,
	}
}

// Relay offers state to every spectator currently watching its player and
// returns how many accepted it. Slow spectators only ever hold the newest
// state, so a player is never blocked by its audience.
func (d *Dispatcher) Relay(ctx context.Context, state PlayerState) int {
	// Snapshot taken under the registry locks; pushes happen outside them
	watchers := d.registry.Watchers(state.PlayerID)

	delivered := 0
	for _, s := range watchers {
		ok := s.PushState(state)
		d.metrics.RecordStatePush(ok)
		if ok {
			delivered++
		}
	}

	if err := d.publisher.PublishState(ctx, state); err != nil {
		log.Warn().
			Err(err).
			Str("player_id", state.PlayerID).
			Uint64("seq", state.Seq).
			Msg("failed to mirror player state")
	}

	log.Debug().
		Str("player_id", state.PlayerID).
		Uint64("seq", state.Seq).
		Int("watchers", len(watchers)).
		Int("delivered", delivered).
		Msg("relayed player state")

	return delivered
}

// SendToPlayer queues an encoded control message on a connected player
func (d *Dispatcher) SendToPlayer(playerID string, data []byte) error {
	s, ok := d.registry.Player(playerID)
	if !ok {
		if d.registry.KnownPlayer(playerID) {
			return fmt.Errorf("player %q: %w", playerID, ErrPlayerNotConnected)
		}
		return fmt.Errorf("player %q: %w", playerID, ErrUnknownPlayer)
	}
	return s.Send(data)
}

// Broadcast queues data on every given session, skipping closed ones
func (d *Dispatcher) Broadcast(sessions []*Session, data []byte) int {
	sent := 0
	for _, s := range sessions {
		if err := s.Send(data); err == nil {
			sent++
		}
	}
	return sent
}

package relay

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// StatsReporter periodically logs session and state counts
type StatsReporter struct {
	registry *Registry
	store    *StateStore
	clock    clockwork.Clock
	interval time.Duration
	logger   zerolog.Logger
}

// NewStatsReporter creates a reporter that logs every interval
func NewStatsReporter(registry *Registry, store *StateStore, clock clockwork.Clock, interval time.Duration, logger zerolog.Logger) *StatsReporter {
	return &StatsReporter{
		registry: registry,
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run logs until ctx is cancelled. A non-positive interval returns at once.
func (r *StatsReporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			r.report()
		}
	}
}

func (r *StatsReporter) report() {
	stats := r.registry.Stats()
	r.logger.Info().
		Int("sessions", stats.Sessions).
		Int("unassigned", stats.Unassigned).
		Int("players", stats.Players).
		Int("spectators", stats.Spectators).
		Int("known_players", stats.KnownIDs).
		Int("stored_players", r.store.Len()).
		Msg("relay stats")
}

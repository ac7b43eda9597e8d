package relay

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStatsReporterLogsOnTick(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry(clock)
	store := NewStateStore(clock)
	_, idA := newTestPlayer(t, reg, "a")
	store.Put(idA, gameState(1))

	out := &syncBuffer{}
	reporter := NewStatsReporter(reg, store, clock, time.Minute, zerolog.New(out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reporter.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Empty(t, out.String())

	clock.Advance(time.Minute)
	waitFor(t, func() bool { return out.String() != "" })
	assert.Contains(t, out.String(), `"players":1`)
	assert.Contains(t, out.String(), `"stored_players":1`)

	cancel()
	assert.NoError(t, <-done)
}

func TestStatsReporterDisabled(t *testing.T) {
	clock := newFakeClock()
	reporter := NewStatsReporter(NewRegistry(clock), NewStateStore(clock), clock, 0, zerolog.Nop())
	assert.NoError(t, reporter.Run(context.Background()))
}

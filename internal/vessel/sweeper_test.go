package vessel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/timeutil"
)

func TestNameSweeper_InitialThenPeriodic(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	names := newFakeQueue()
	reg := NewRegistry(RegistryConfig{Clock: clock, Expiry: time.Hour, Names: names})
	reg.OnUpdate("v1", FieldPosition, pt(60, 25))

	sweeper := NewNameSweeper(reg, clock, 500*time.Millisecond, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	clock.Advance(400 * time.Millisecond)
	assert.Never(t, func() bool { return len(names.Enqueued()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(names.Enqueued()) == 1 }, time.Second, 5*time.Millisecond)

	// The lookup failed; the next sweep retries it.
	names.finish("v1")
	clock.Advance(29500 * time.Millisecond)
	require.Eventually(t, func() bool { return len(names.Enqueued()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNewNameSweeper_Defaults(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	reg := NewRegistry(RegistryConfig{Clock: clock})
	NewNameSweeper(reg, clock, 0, 0)

	// One initial timer armed at the default delay.
	assert.Equal(t, 1, clock.PendingTimers())
	clock.Advance(DefaultSweepInitialDelay)
	assert.Zero(t, clock.PendingTimers())
}

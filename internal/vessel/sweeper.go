package vessel

import (
	"context"
	"time"

	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// Default name sweep timing.
const (
	DefaultSweepInterval     = 30 * time.Second
	DefaultSweepInitialDelay = 500 * time.Millisecond
)

// NameSweeper calls Registry.SweepNames once shortly after start and then on
// a fixed period.
type NameSweeper struct {
	registry *Registry
	initial  timeutil.Timer
	ticker   timeutil.Ticker
}

// NewNameSweeper arms the sweep timers. Timers start counting immediately,
// not when Run is called.
func NewNameSweeper(r *Registry, clock timeutil.Clock, initialDelay, interval time.Duration) *NameSweeper {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if initialDelay <= 0 {
		initialDelay = DefaultSweepInitialDelay
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &NameSweeper{
		registry: r,
		initial:  clock.NewTimer(initialDelay),
		ticker:   clock.NewTicker(interval),
	}
}

// Run sweeps until ctx is cancelled. It always returns ctx.Err().
func (s *NameSweeper) Run(ctx context.Context) error {
	defer s.initial.Stop()
	defer s.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.initial.C():
			s.registry.SweepNames()
		case <-s.ticker.C():
			s.registry.SweepNames()
		}
	}
}

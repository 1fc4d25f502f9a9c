// Package enrich fetches data that is missing from the live stream (vessel
// names and historical tracks) from a slow backend, one request at a time.
package enrich

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/vessel.report/internal/metrics"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// DefaultMaxDelay caps the pause between two consecutive fetches.
const DefaultMaxDelay = 500 * time.Millisecond

// Kind names the enrichment a scheduler performs.
type Kind string

const (
	KindName  Kind = "name"
	KindTrack Kind = "track"
)

var (
	// ErrTrackUnsupported means the backend definitively has no track
	// endpoint. It switches historical tracks off for the whole process.
	ErrTrackUnsupported = errors.New("enrich: track endpoint unsupported")

	// ErrNotApplied means a fetch succeeded but its result was discarded,
	// usually because the vessel expired while the request was in flight.
	ErrNotApplied = errors.New("enrich: result not applied")
)

// FetchFunc performs one enrichment job for id and applies its result.
type FetchFunc func(ctx context.Context, id string) error

// SchedulerConfig contains configuration for Scheduler.
type SchedulerConfig struct {
	// Kind labels logs and metrics
	Kind Kind
	// Fetch runs one job
	Fetch FetchFunc
	// Clock is used for pacing; nil uses the real clock
	Clock timeutil.Clock
	// MaxDelay caps the pause after each job (default 500ms)
	MaxDelay time.Duration
	// Timeout bounds a single fetch; zero means no timeout
	Timeout time.Duration
	// Metrics is optional
	Metrics *metrics.Metrics
}

// Scheduler is a sequential work queue. Jobs run strictly one at a time; after
// each job the scheduler pauses for as long as the job took, up to MaxDelay,
// so a slow backend slows the queue down. A vessel id is queued at most once
// until its job finishes, unless Cancel detaches the running job from the id.
type Scheduler struct {
	kind     Kind
	fetch    FetchFunc
	clock    timeutil.Clock
	maxDelay time.Duration
	timeout  time.Duration
	metrics  *metrics.Metrics

	mu       sync.Mutex
	queue    []string
	queued   map[string]bool
	inFlight string
	busy     bool

	// detached is set when Cancel hits the running job; its id may be
	// queued again and its result is discarded.
	detached     bool
	cancelFlight context.CancelFunc

	wake chan struct{}
}

// NewScheduler creates an idle scheduler. Call Run to start processing.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		kind:     cfg.Kind,
		fetch:    cfg.Fetch,
		clock:    cfg.Clock,
		maxDelay: cfg.MaxDelay,
		timeout:  cfg.Timeout,
		metrics:  cfg.Metrics,
		queued:   make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.maxDelay <= 0 {
		s.maxDelay = DefaultMaxDelay
	}
	return s
}

// Kind returns the scheduler's enrichment kind.
func (s *Scheduler) Kind() Kind { return s.kind }

// Enqueue appends id to the queue unless it is already queued or in flight.
func (s *Scheduler) Enqueue(id string) bool {
	s.mu.Lock()
	if s.queued[id] || s.runningLocked(id) {
		s.mu.Unlock()
		return false
	}
	s.queued[id] = true
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// Cancel removes a queued job for id. A job already in flight for id has its
// context cancelled and no longer counts as pending, so the id can be queued
// again right away.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked(id) {
		s.detached = true
		s.cancelFlight()
	}
	if !s.queued[id] {
		return
	}
	delete(s.queued, id)
	for i, q := range s.queue {
		if q == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
}

// Pending reports whether id is queued or in flight.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queued[id] || s.runningLocked(id)
}

func (s *Scheduler) runningLocked(id string) bool {
	return s.busy && !s.detached && s.inFlight == id
}

// Len returns the number of queued jobs, excluding the one in flight.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run processes jobs until ctx is cancelled. When the queue is empty it
// idles until the next Enqueue. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, ok := s.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}
		elapsed := s.process(ctx, id)
		s.clock.Sleep(min(elapsed, s.maxDelay))
	}
}

func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.queued, id)
	return id, true
}

// start marks id as in flight and returns the context its fetch runs under.
func (s *Scheduler) start(ctx context.Context, id string) (context.Context, context.CancelFunc) {
	var fctx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}

	s.mu.Lock()
	s.inFlight = id
	s.busy = true
	s.detached = false
	s.cancelFlight = cancel
	s.mu.Unlock()
	return fctx, cancel
}

// done clears the in-flight job and reports whether Cancel detached it.
func (s *Scheduler) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	detached := s.detached
	s.inFlight = ""
	s.busy = false
	s.detached = false
	s.cancelFlight = nil
	return detached
}

// process runs one job and returns how long the fetch took.
func (s *Scheduler) process(ctx context.Context, id string) time.Duration {
	fctx, cancel := s.start(ctx, id)
	start := s.clock.Now()
	err := s.fetch(fctx, id)
	elapsed := s.clock.Since(start)
	cancel()
	detached := s.done()
	s.metrics.ObserveFetch(string(s.kind), elapsed)

	outcome := "ok"
	switch {
	case detached, errors.Is(err, ErrNotApplied):
		outcome = "discarded"
	case err == nil:
	case errors.Is(err, ErrTrackUnsupported):
		outcome = "unsupported"
	default:
		outcome = "error"
		monitoring.Logf("[Enrich] %s lookup for %s failed after %s: %v", s.kind, id, elapsed, err)
	}
	s.metrics.IncJob(string(s.kind), outcome)
	return elapsed
}

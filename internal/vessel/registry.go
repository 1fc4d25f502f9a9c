// Package vessel maintains the set of tracked vessels: creation on first
// position, idle expiry, per-vessel derived state and routing of enrichment
// results.
package vessel

import (
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/metrics"
	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/observe"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// DefaultExpiry is the idle window after which a silent vessel is forgotten.
const DefaultExpiry = 5 * time.Minute

// Field identifies a live field carried by update messages.
type Field int

const (
	FieldUnknown Field = iota
	FieldPosition
	FieldHeading
	FieldSpeed
)

func (f Field) String() string {
	switch f {
	case FieldPosition:
		return "position"
	case FieldHeading:
		return "heading"
	case FieldSpeed:
		return "speed"
	}
	return "unknown"
}

// ParseField maps an update path to a Field. Both the short names and the
// Signal K navigation paths are accepted.
func ParseField(path string) (Field, bool) {
	switch strings.TrimSpace(path) {
	case "position", "navigation.position":
		return FieldPosition, true
	case "heading", "course", "navigation.courseOverGroundTrue", "navigation.headingTrue":
		return FieldHeading, true
	case "speed", "speedOverGround", "navigation.speedOverGround":
		return FieldSpeed, true
	}
	return FieldUnknown, false
}

// Enqueuer is the registry's view of an enrichment scheduler.
type Enqueuer interface {
	// Enqueue queues id unless it is already queued or in flight.
	Enqueue(id string) bool
	// Cancel drops a queued job for id and detaches one in flight, so a
	// new vessel with the same id can be queued straight away.
	Cancel(id string)
	// Pending reports whether id is queued or in flight.
	Pending(id string) bool
}

// EventKind distinguishes registry membership events.
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventRemoved
)

func (k EventKind) String() string {
	if k == EventAdded {
		return "added"
	}
	return "removed"
}

// Event reports a vessel joining or leaving the registry.
type Event struct {
	Kind     EventKind
	ID       string
	Pipeline *Pipeline
}

// RegistryConfig contains configuration for Registry.
type RegistryConfig struct {
	// Clock drives expiry and throttling; nil uses the real clock
	Clock timeutil.Clock
	// Expiry is the idle window (default 5m)
	Expiry time.Duration
	// TrackThrottle is the live track sampling window (default 5s)
	TrackThrottle time.Duration
	// Names receives name lookups from SweepNames; optional
	Names Enqueuer
	// Tracks receives a historical track lookup for each new vessel; optional
	Tracks Enqueuer
	// TracksAvailable gates track lookups; nil means always available
	TracksAvailable func() bool
	// Metrics is optional
	Metrics *metrics.Metrics
}

// Registry maps vessel ids to their pipelines.
type Registry struct {
	clock         timeutil.Clock
	expiry        time.Duration
	throttle      time.Duration
	names         Enqueuer
	tracks        Enqueuer
	tracksEnabled func() bool
	metrics       *metrics.Metrics

	mu       sync.Mutex
	entities map[string]*Pipeline
	selfID   string

	events *observe.Feed[Event]
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		clock:         cfg.Clock,
		expiry:        cfg.Expiry,
		throttle:      cfg.TrackThrottle,
		names:         cfg.Names,
		tracks:        cfg.Tracks,
		tracksEnabled: cfg.TracksAvailable,
		metrics:       cfg.Metrics,
		entities:      make(map[string]*Pipeline),
		events:        observe.NewFeed[Event](),
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if r.expiry <= 0 {
		r.expiry = DefaultExpiry
	}
	if r.throttle <= 0 {
		r.throttle = DefaultTrackThrottle
	}
	return r
}

// OnUpdate routes one field update to its vessel. A position for an unknown
// id creates the vessel; any other field for an unknown id is dropped, as
// are unknown fields and malformed values. It reports whether the update
// was applied.
func (r *Registry) OnUpdate(id string, field Field, value any) bool {
	if id == "" || field == FieldUnknown {
		return false
	}
	if field == FieldPosition {
		if _, ok := asPoint(value); !ok {
			return false
		}
	}

	for {
		p, created := r.lookup(id, field == FieldPosition)
		if p == nil {
			return false
		}
		if created {
			r.added(p)
		}
		ok, closed := p.apply(field, value)
		if !closed {
			return ok
		}
		// Expired between lookup and apply; a position starts a fresh vessel
		// once the expiring one has left the map.
		if field != FieldPosition {
			return false
		}
		runtime.Gosched()
	}
}

func (r *Registry) lookup(id string, create bool) (*Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.entities[id]; ok {
		return p, false
	}
	if !create {
		return nil, false
	}
	p := newPipeline(id, r.clock, r.expiry, r.throttle, id == r.selfID, r.expired)
	r.entities[id] = p
	r.metrics.SetTracked(len(r.entities))
	return p, true
}

func (r *Registry) added(p *Pipeline) {
	r.metrics.IncCreated()
	monitoring.Logf("[Registry] vessel %s added", p.id)
	r.events.Publish(Event{Kind: EventAdded, ID: p.id, Pipeline: p})

	if r.tracks != nil && r.tracksAvailable() {
		r.tracks.Enqueue(p.id)
	}
}

func (r *Registry) tracksAvailable() bool {
	return r.tracksEnabled == nil || r.tracksEnabled()
}

func (r *Registry) expired(p *Pipeline) {
	if r.remove(p.id, p) {
		r.metrics.IncExpired()
		monitoring.Logf("[Registry] vessel %s expired after %s idle", p.id, r.expiry)
	}
}

// Remove deletes a vessel and discards its queued enrichment jobs. It reports
// whether the vessel was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	p := r.entities[id]
	r.mu.Unlock()
	if p == nil {
		return false
	}
	return r.remove(id, p)
}

// remove deletes id only while it still maps to p, so a stale expiry cannot
// remove a newer vessel with the same id.
func (r *Registry) remove(id string, p *Pipeline) bool {
	r.mu.Lock()
	if r.entities[id] != p {
		r.mu.Unlock()
		return false
	}
	delete(r.entities, id)
	r.metrics.SetTracked(len(r.entities))
	r.mu.Unlock()

	p.close()
	if r.names != nil {
		r.names.Cancel(id)
	}
	if r.tracks != nil {
		r.tracks.Cancel(id)
	}
	r.events.Publish(Event{Kind: EventRemoved, ID: id, Pipeline: p})
	return true
}

// OnSelfAnnounced records which id is self. Matching vessels, current and
// future, report IsSelf true.
func (r *Registry) OnSelfAnnounced(id string) {
	r.mu.Lock()
	r.selfID = id
	p := r.entities[id]
	r.mu.Unlock()

	if p != nil {
		p.markSelf()
	}
}

// SelfID returns the announced self id, if any.
func (r *Registry) SelfID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selfID
}

// SweepNames queues a name lookup for every vessel that still has no name
// and is not already queued. It returns the number of vessels queued.
func (r *Registry) SweepNames() int {
	if r.names == nil {
		return 0
	}
	n := 0
	for _, p := range r.pipelines() {
		if p.hasName() || r.names.Pending(p.id) {
			continue
		}
		p.requestName()
		if r.names.Enqueue(p.id) {
			n++
		}
	}
	return n
}

// NameTarget binds a name result to the vessel currently tracked under id.
// The returned func discards the name if that vessel has since been removed,
// even when a new vessel with the same id exists.
func (r *Registry) NameTarget(id string) (func(raw string) bool, bool) {
	p, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return func(raw string) bool {
		name := NormalizeName(raw)
		return name != "" && p.applyName(name)
	}, true
}

// TrackTarget binds a historical track result to the vessel currently tracked
// under id, like NameTarget.
func (r *Registry) TrackTarget(id string) (func(points []geo.Point) bool, bool) {
	p, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return p.applyHistorical, true
}

// ApplyName stores a fetched name on the vessel tracked under id. Names that
// normalise to empty, and names for absent vessels, are discarded.
func (r *Registry) ApplyName(id, raw string) bool {
	apply, ok := r.NameTarget(id)
	return ok && apply(raw)
}

// ApplyTrack stores a fetched historical track on the vessel tracked under id.
func (r *Registry) ApplyTrack(id string, points []geo.Point) bool {
	apply, ok := r.TrackTarget(id)
	return ok && apply(points)
}

// Get returns the pipeline for id.
func (r *Registry) Get(id string) (*Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entities[id]
	return p, ok
}

// Len returns the number of tracked vessels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entities)
}

// Snapshot returns the state of every vessel ordered by id.
func (r *Registry) Snapshot() []State {
	ps := r.pipelines()
	states := make([]State, 0, len(ps))
	for _, p := range ps {
		states = append(states, p.Snapshot())
	}
	return states
}

// Positions returns the last known position of every vessel.
func (r *Registry) Positions() map[string]geo.Point {
	ps := r.pipelines()
	out := make(map[string]geo.Point, len(ps))
	for _, p := range ps {
		if pos, ok := p.position.Get(); ok {
			out[p.id] = pos
		}
	}
	return out
}

// Subscribe registers fn for add/remove events. Events are delivered on the
// goroutine that caused them.
func (r *Registry) Subscribe(fn func(Event)) (cancel func()) {
	return r.events.Subscribe(fn)
}

func (r *Registry) pipelines() []*Pipeline {
	r.mu.Lock()
	ps := make([]*Pipeline, 0, len(r.entities))
	for _, p := range r.entities {
		ps = append(ps, p)
	}
	r.mu.Unlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].id < ps[j].id })
	return ps
}

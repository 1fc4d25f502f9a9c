package vessel

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/observe"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// Pipeline owns the live state of one vessel and publishes every field as an
// observable value. It arms an idle timer on creation; each position update
// resets it, and when it fires the pipeline asks its registry to remove it.
type Pipeline struct {
	id     string
	clock  timeutil.Clock
	expiry time.Duration
	// onExpire is called at most once, without locks held.
	onExpire func(*Pipeline)

	// pub serialises state change + publication so subscribers observe
	// values in the order they were applied.
	pub sync.Mutex

	mu            sync.Mutex
	acc           *TrackAccumulator
	timer         timeutil.Timer
	lastUpdateAt  time.Time
	nameRequested bool
	expiring      bool
	closed        bool

	position *observe.Value[geo.Point]
	heading  *observe.Value[float64]
	speed    *observe.Value[float64]
	name     *observe.Value[string]
	isSelf   *observe.Value[bool]
	track    *observe.Value[[]geo.Point]
}

func newPipeline(id string, clock timeutil.Clock, expiry, throttle time.Duration, isSelf bool, onExpire func(*Pipeline)) *Pipeline {
	p := &Pipeline{
		id:           id,
		clock:        clock,
		expiry:       expiry,
		onExpire:     onExpire,
		acc:          NewTrackAccumulator(throttle),
		lastUpdateAt: clock.Now(),
		position:     observe.NewValue[geo.Point](),
		heading:      observe.NewValue[float64](),
		speed:        observe.NewValue[float64](),
		name:         observe.NewValue[string](),
		isSelf:       observe.NewValue[bool](),
		track:        observe.NewValueFunc(equalTrack),
	}
	p.isSelf.Set(isSelf)
	p.timer = clock.AfterFunc(expiry, p.expire)
	return p
}

// ID returns the vessel identifier.
func (p *Pipeline) ID() string { return p.id }

// Position returns the last known position.
func (p *Pipeline) Position() observe.Observable[geo.Point] { return p.position }

// Heading returns the last known heading in radians.
func (p *Pipeline) Heading() observe.Observable[float64] { return p.heading }

// Speed returns the last known speed over ground in m/s.
func (p *Pipeline) Speed() observe.Observable[float64] { return p.speed }

// Name returns the normalised display name once enrichment succeeds.
func (p *Pipeline) Name() observe.Observable[string] { return p.name }

// IsSelf reports whether this vessel is the one announced as self.
func (p *Pipeline) IsSelf() observe.Observable[bool] { return p.isSelf }

// Track returns the merged historical and live track.
func (p *Pipeline) Track() observe.Observable[[]geo.Point] { return p.track }

// Closed reports whether the pipeline has been, or is being, removed from its
// registry.
func (p *Pipeline) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed || p.expiring
}

// apply updates one field. ok is false for a malformed value; closed is true
// when the pipeline was removed before the update could land.
func (p *Pipeline) apply(field Field, value any) (ok, closed bool) {
	switch field {
	case FieldPosition:
		pt, valid := asPoint(value)
		if !valid {
			return false, false
		}
		return p.applyPosition(pt)
	case FieldHeading, FieldSpeed:
		v, valid := asNumber(value)
		if !valid {
			return false, false
		}
		p.pub.Lock()
		defer p.pub.Unlock()
		if p.Closed() {
			return false, true
		}
		if field == FieldHeading {
			p.heading.Set(v)
		} else {
			p.speed.Set(v)
		}
		return true, false
	}
	return false, false
}

func (p *Pipeline) applyPosition(pt geo.Point) (ok, closed bool) {
	p.pub.Lock()
	defer p.pub.Unlock()

	p.mu.Lock()
	if p.closed || p.expiring {
		p.mu.Unlock()
		return false, true
	}
	now := p.clock.Now()
	p.lastUpdateAt = now
	p.timer.Reset(p.expiry)
	p.acc.Add(pt, now)
	view := p.acc.View()
	p.mu.Unlock()

	p.position.Set(pt)
	p.track.Set(view)
	return true, false
}

// applyHistorical stores the historical track once and republishes the view
// when a position is already known.
func (p *Pipeline) applyHistorical(points []geo.Point) bool {
	p.pub.Lock()
	defer p.pub.Unlock()

	p.mu.Lock()
	if p.closed || p.expiring || !p.acc.SetHistorical(points) {
		p.mu.Unlock()
		return false
	}
	_, hasPos := p.acc.Latest()
	view := p.acc.View()
	p.mu.Unlock()

	if hasPos {
		p.track.Set(view)
	}
	return true
}

func (p *Pipeline) applyName(name string) bool {
	p.pub.Lock()
	defer p.pub.Unlock()
	if p.Closed() {
		return false
	}
	p.name.Set(name)
	return true
}

// markSelf flips isSelf to true. It never flips back.
func (p *Pipeline) markSelf() {
	p.pub.Lock()
	defer p.pub.Unlock()
	if !p.Closed() {
		p.isSelf.Set(true)
	}
}

// requestName records that a name lookup has been requested.
func (p *Pipeline) requestName() {
	p.mu.Lock()
	p.nameRequested = true
	p.mu.Unlock()
}

func (p *Pipeline) hasName() bool {
	_, ok := p.name.Get()
	return ok
}

func (p *Pipeline) expire() {
	p.mu.Lock()
	if p.closed || p.expiring {
		p.mu.Unlock()
		return
	}
	// A position may have landed between the timer firing and this call.
	if idle := p.clock.Since(p.lastUpdateAt); idle < p.expiry {
		p.timer.Reset(p.expiry - idle)
		p.mu.Unlock()
		return
	}
	// Refuse updates from here on; a position arriving now starts a new
	// vessel instead of landing on this one.
	p.expiring = true
	p.mu.Unlock()
	p.onExpire(p)
}

// close stops the timer and drops every subscriber. Safe to call twice.
func (p *Pipeline) close() {
	p.pub.Lock()
	defer p.pub.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.timer.Stop()
	p.mu.Unlock()

	p.position.Close()
	p.heading.Close()
	p.speed.Close()
	p.name.Close()
	p.isSelf.Close()
	p.track.Close()
}

// State is a point-in-time copy of a pipeline's fields.
type State struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	IsSelf        bool        `json:"self"`
	Position      *geo.Point  `json:"position,omitempty"`
	Heading       *float64    `json:"heading,omitempty"`
	Speed         *float64    `json:"speed,omitempty"`
	Track         []geo.Point `json:"track,omitempty"`
	NameRequested bool        `json:"name_requested"`
	HasHistorical bool        `json:"has_historical"`
	LastUpdateAt  time.Time   `json:"last_update_at"`
}

// Snapshot returns the pipeline's current state.
func (p *Pipeline) Snapshot() State {
	s := State{ID: p.id}
	if v, ok := p.position.Get(); ok {
		s.Position = &v
	}
	if v, ok := p.heading.Get(); ok {
		s.Heading = &v
	}
	if v, ok := p.speed.Get(); ok {
		s.Speed = &v
	}
	s.Name, _ = p.name.Get()
	s.IsSelf, _ = p.isSelf.Get()
	s.Track, _ = p.track.Get()

	p.mu.Lock()
	s.NameRequested = p.nameRequested
	s.HasHistorical = p.acc.HasHistorical()
	s.LastUpdateAt = p.lastUpdateAt
	p.mu.Unlock()
	return s
}

// Projection dead-reckons the state forward. It returns nil unless
// position, heading and speed are all known.
func (s State) Projection(horizon, step time.Duration) []geo.Point {
	if s.Position == nil || s.Heading == nil || s.Speed == nil {
		return nil
	}
	return geo.DeadReckon(*s.Position, *s.Heading, *s.Speed, horizon, step)
}

func equalTrack(a, b []geo.Point) bool { return slices.Equal(a, b) }

func asPoint(v any) (geo.Point, bool) {
	var pt geo.Point
	switch t := v.(type) {
	case geo.Point:
		pt = t
	case *geo.Point:
		if t == nil {
			return pt, false
		}
		pt = *t
	default:
		return pt, false
	}
	if !finite(pt.Lat) || !finite(pt.Lon) || math.Abs(pt.Lat) > 90 || math.Abs(pt.Lon) > 180 {
		return pt, false
	}
	return pt, true
}

func asNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	default:
		return 0, false
	}
	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

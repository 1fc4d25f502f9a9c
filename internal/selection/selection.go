// Package selection tracks which vessel is under a pointer.
package selection

import (
	"math"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/observe"
)

// Resolver maps a pointer position to the vessel under it.
type Resolver interface {
	Resolve(p geo.Point) (id string, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(p geo.Point) (string, bool)

// Resolve calls f(p).
func (f ResolverFunc) Resolve(p geo.Point) (string, bool) { return f(p) }

// Tracker exposes the currently selected vessel id. The empty string means
// nothing is selected. Subscribers are only notified when the selection
// actually changes.
type Tracker struct {
	resolver Resolver
	selected *observe.Value[string]
}

// NewTracker returns a tracker with nothing selected.
func NewTracker(r Resolver) *Tracker {
	t := &Tracker{resolver: r, selected: observe.NewValue[string]()}
	t.selected.Set("")
	return t
}

// Move resolves p and updates the selection. It returns the selected id.
func (t *Tracker) Move(p geo.Point) string {
	id, ok := t.resolver.Resolve(p)
	if !ok {
		id = ""
	}
	t.selected.Set(id)
	return id
}

// Clear drops the selection, as when the pointer leaves the map.
func (t *Tracker) Clear() {
	t.selected.Set("")
}

// Selected returns the observable selection.
func (t *Tracker) Selected() observe.Observable[string] {
	return t.selected
}

// Current returns the selected id, if any.
func (t *Tracker) Current() (string, bool) {
	id, _ := t.selected.Get()
	return id, id != ""
}

// PositionSource lists the current position of every vessel.
type PositionSource interface {
	Positions() map[string]geo.Point
}

// NearestResolver selects the closest vessel within RadiusMeters of the
// pointer. Ties go to the lexically smaller id.
type NearestResolver struct {
	Source       PositionSource
	RadiusMeters float64
}

// Resolve implements Resolver.
func (n NearestResolver) Resolve(p geo.Point) (string, bool) {
	best, bestDist := "", math.Inf(1)
	for id, pos := range n.Source.Positions() {
		d := geo.Distance(p, pos)
		if d > n.RadiusMeters {
			continue
		}
		if d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}

package vessel

import (
	"time"

	"github.com/banshee-data/vessel.report/internal/geo"
)

// DefaultTrackThrottle is the minimum spacing between persisted live samples.
const DefaultTrackThrottle = 5 * time.Second

// TrackAccumulator merges a one-time historical track with live positions.
// Live positions are persisted at most once per throttle window; the latest
// raw position is always appended to the view so the trail ends where the
// vessel currently is.
//
// TrackAccumulator is not safe for concurrent use; Pipeline guards it.
type TrackAccumulator struct {
	throttle time.Duration

	historical []geo.Point
	live       []geo.Point

	lastPersisted time.Time
	latest        geo.Point
	hasLatest     bool
	// latest is also the tail of live
	latestPersisted bool
}

// NewTrackAccumulator returns an accumulator with the given throttle window.
// A non-positive window falls back to DefaultTrackThrottle.
func NewTrackAccumulator(throttle time.Duration) *TrackAccumulator {
	if throttle <= 0 {
		throttle = DefaultTrackThrottle
	}
	return &TrackAccumulator{throttle: throttle}
}

// Add records a live position observed at the given time and reports whether
// it was persisted into the live buffer.
func (a *TrackAccumulator) Add(p geo.Point, at time.Time) bool {
	a.latest = p
	a.hasLatest = true

	if len(a.live) > 0 && at.Sub(a.lastPersisted) < a.throttle {
		a.latestPersisted = false
		return false
	}
	a.live = append(a.live, p)
	a.lastPersisted = at
	a.latestPersisted = true
	return true
}

// SetHistorical stores the retrieved historical track. It succeeds once; an
// empty track is ignored so a later non-empty one can still be stored.
func (a *TrackAccumulator) SetHistorical(points []geo.Point) bool {
	if a.historical != nil || len(points) == 0 {
		return false
	}
	a.historical = append([]geo.Point(nil), points...)
	return true
}

// HasHistorical reports whether a non-empty historical track has been stored.
func (a *TrackAccumulator) HasHistorical() bool {
	return a.historical != nil
}

// Latest returns the most recent raw position.
func (a *TrackAccumulator) Latest() (geo.Point, bool) {
	return a.latest, a.hasLatest
}

// View returns historical ++ live ++ latest as a fresh slice.
func (a *TrackAccumulator) View() []geo.Point {
	n := len(a.historical) + len(a.live) + 1
	view := make([]geo.Point, 0, n)
	view = append(view, a.historical...)
	view = append(view, a.live...)
	if a.hasLatest && !a.latestPersisted {
		view = append(view, a.latest)
	}
	return view
}

package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/metrics"
	"github.com/banshee-data/vessel.report/internal/monitoring"
)

// NameSource fetches a raw vessel name.
type NameSource interface {
	FetchName(ctx context.Context, id string) (string, error)
}

// NameSink resolves id to the vessel a name lookup is for. The returned apply
// func stores a name on that vessel only and reports false when the result
// was dropped. ok is false when no vessel with id is tracked.
type NameSink interface {
	NameTarget(id string) (apply func(name string) bool, ok bool)
}

// TrackSource fetches a historical track in (lat, lon) order.
type TrackSource interface {
	FetchTrack(ctx context.Context, id string) ([]geo.Point, error)
}

// TrackSink resolves id to the vessel a track lookup is for, like NameSink.
type TrackSink interface {
	TrackTarget(id string) (apply func(points []geo.Point) bool, ok bool)
}

// Availability is the process-wide "tracks unavailable" flag. Once marked
// unavailable it stays that way. A nil *Availability is always available.
type Availability struct {
	unavailable atomic.Bool
	metrics     *metrics.Metrics
}

// NewAvailability returns a flag in the available state.
func NewAvailability(m *metrics.Metrics) *Availability {
	return &Availability{metrics: m}
}

// Available reports whether historical tracks may still be requested.
func (a *Availability) Available() bool {
	return a == nil || !a.unavailable.Load()
}

// MarkUnavailable switches tracks off. It reports true only for the call that
// made the transition.
func (a *Availability) MarkUnavailable() bool {
	if a == nil || !a.unavailable.CompareAndSwap(false, true) {
		return false
	}
	a.metrics.SetTracksUnavailable()
	monitoring.Logf("[Enrich] track endpoint unsupported; historical tracks disabled")
	return true
}

// NameJob fetches a name and hands it to the vessel that was tracked under id
// when the job started. A failed fetch leaves the vessel unnamed; the next
// name sweep picks it up again.
func NameJob(src NameSource, sink NameSink) FetchFunc {
	return func(ctx context.Context, id string) error {
		apply, ok := sink.NameTarget(id)
		if !ok {
			return ErrNotApplied
		}
		name, err := src.FetchName(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch name: %w", err)
		}
		if !apply(name) {
			return ErrNotApplied
		}
		return nil
	}
}

// TrackJob fetches a historical track and hands it to the vessel that was
// tracked under id when the job started. An unsupported
// response marks avail unavailable, after which no further requests are made.
func TrackJob(src TrackSource, sink TrackSink, avail *Availability) FetchFunc {
	return func(ctx context.Context, id string) error {
		if !avail.Available() {
			return ErrNotApplied
		}
		apply, ok := sink.TrackTarget(id)
		if !ok {
			return ErrNotApplied
		}
		points, err := src.FetchTrack(ctx, id)
		if errors.Is(err, ErrTrackUnsupported) {
			avail.MarkUnavailable()
			return err
		}
		if err != nil {
			return fmt.Errorf("fetch track: %w", err)
		}
		if !apply(points) {
			return ErrNotApplied
		}
		return nil
	}
}

package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/vessel.report/internal/geo"
)

type staticPositions map[string]geo.Point

func (s staticPositions) Positions() map[string]geo.Point { return s }

func TestTracker_DistinctUntilChanged(t *testing.T) {
	hits := map[geo.Point]string{
		{Lat: 1, Lon: 1}: "a",
		{Lat: 2, Lon: 2}: "b",
	}
	tr := NewTracker(ResolverFunc(func(p geo.Point) (string, bool) {
		id, ok := hits[p]
		return id, ok
	}))

	var seen []string
	tr.Selected().Subscribe(func(id string) { seen = append(seen, id) })

	tr.Move(geo.Point{Lat: 1, Lon: 1})
	tr.Move(geo.Point{Lat: 1, Lon: 1})
	tr.Move(geo.Point{Lat: 2, Lon: 2})
	tr.Move(geo.Point{Lat: 9, Lon: 9})
	tr.Move(geo.Point{Lat: 8, Lon: 8})
	tr.Move(geo.Point{Lat: 2, Lon: 2})
	tr.Clear()

	assert.Equal(t, []string{"", "a", "b", "", "b", ""}, seen)
	_, ok := tr.Current()
	assert.False(t, ok)
}

func TestTracker_Current(t *testing.T) {
	tr := NewTracker(ResolverFunc(func(geo.Point) (string, bool) { return "v1", true }))
	assert.Equal(t, "v1", tr.Move(geo.Point{}))
	id, ok := tr.Current()
	assert.True(t, ok)
	assert.Equal(t, "v1", id)
}

func TestNearestResolver(t *testing.T) {
	origin := geo.Point{Lat: 60, Lon: 25}
	src := staticPositions{
		"near": geo.Project(origin, 0, 100),
		"far":  geo.Project(origin, 0, 1000),
		"tieA": geo.Project(origin, 3.14159, 300),
	}
	r := NearestResolver{Source: src, RadiusMeters: 500}

	id, ok := r.Resolve(origin)
	assert.True(t, ok)
	assert.Equal(t, "near", id)

	id, ok = r.Resolve(geo.Project(origin, 0, 950))
	assert.True(t, ok)
	assert.Equal(t, "far", id)

	_, ok = r.Resolve(geo.Point{Lat: 0, Lon: 0})
	assert.False(t, ok)

	_, ok = NearestResolver{Source: staticPositions{}, RadiusMeters: 500}.Resolve(origin)
	assert.False(t, ok)
}

func TestNearestResolver_TieBreak(t *testing.T) {
	p := geo.Point{Lat: 10, Lon: 10}
	r := NearestResolver{Source: staticPositions{"b": p, "a": p}, RadiusMeters: 1}
	id, ok := r.Resolve(p)
	assert.True(t, ok)
	assert.Equal(t, "a", id)
}

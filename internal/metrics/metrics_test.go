package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetTracked(3)
		m.IncCreated()
		m.IncExpired()
		m.IncJob("name", "ok")
		m.ObserveFetch("track", time.Second)
		m.SetTracksUnavailable()
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetTracked(2)
	m.IncCreated()
	m.IncCreated()
	m.IncExpired()
	m.IncJob("name", "ok")
	m.IncJob("name", "ok")
	m.IncJob("track", "unsupported")
	m.ObserveFetch("name", 120*time.Millisecond)
	m.SetTracksUnavailable()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VesselsTracked))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VesselsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VesselsExpired))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EnrichmentJobs.WithLabelValues("name", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentJobs.WithLabelValues("track", "unsupported")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TracksUnavailable))

	n, err := testutil.GatherAndCount(reg, "vessels_enrichment_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewRegistersSeparately(t *testing.T) {
	// Two registries must not collide.
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

// Package metrics defines the Prometheus collectors for the vessel tracker.
// Every method accepts a nil receiver so callers never need to guard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry and enrichment schedulers.
type Metrics struct {
	// Vessels currently held in the registry
	VesselsTracked prometheus.Gauge

	// Registry lifecycle
	VesselsCreated prometheus.Counter
	VesselsExpired prometheus.Counter

	// Enrichment jobs by kind and outcome
	EnrichmentJobs *prometheus.CounterVec

	// Enrichment fetch latency by kind
	FetchLatency *prometheus.HistogramVec

	// 1 once the track endpoint has been reported unsupported
	TracksUnavailable prometheus.Gauge
}

// New registers all collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		VesselsTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "vessels_tracked",
			Help: "Number of vessels currently tracked",
		}),
		VesselsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "vessels_created_total",
			Help: "Vessels created on first position sighting",
		}),
		VesselsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "vessels_expired_total",
			Help: "Vessels removed after the idle expiry window",
		}),
		EnrichmentJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vessels_enrichment_jobs_total",
			Help: "Enrichment jobs processed by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: "ok", "error", "unsupported", "discarded"

		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vessels_enrichment_fetch_duration_seconds",
			Help:    "Duration of enrichment fetches by kind",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		TracksUnavailable: f.NewGauge(prometheus.GaugeOpts{
			Name: "vessels_tracks_unavailable",
			Help: "1 once the server has reported historical tracks unsupported",
		}),
	}
}

// SetTracked records the current registry size.
func (m *Metrics) SetTracked(n int) {
	if m != nil {
		m.VesselsTracked.Set(float64(n))
	}
}

// IncCreated records a new vessel.
func (m *Metrics) IncCreated() {
	if m != nil {
		m.VesselsCreated.Inc()
	}
}

// IncExpired records an expired vessel.
func (m *Metrics) IncExpired() {
	if m != nil {
		m.VesselsExpired.Inc()
	}
}

// IncJob records one finished enrichment job.
func (m *Metrics) IncJob(kind, outcome string) {
	if m != nil {
		m.EnrichmentJobs.WithLabelValues(kind, outcome).Inc()
	}
}

// ObserveFetch records how long one enrichment fetch took.
func (m *Metrics) ObserveFetch(kind string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// SetTracksUnavailable flips the tracks-unavailable gauge.
func (m *Metrics) SetTracksUnavailable() {
	if m != nil {
		m.TracksUnavailable.Set(1)
	}
}

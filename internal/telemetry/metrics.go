package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Cache request results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the Prometheus collectors for one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CacheRequests  *prometheus.CounterVec
	Runs           prometheus.Counter
	RunDuration    prometheus.Histogram
	EntityOutcomes *prometheus.CounterVec
	EventsApplied  prometheus.Counter
	EventsSkipped  prometheus.Counter
	FetchDuration  prometheus.Histogram
	FetchRetries   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a new registry
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_cache_requests_total",
				Help: "Read-through cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),

		Runs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_trigger_runs_total",
				Help: "Total number of scheduler runs",
			},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ordersync_trigger_run_duration_seconds",
				Help:    "Duration of scheduler runs",
				Buckets: prometheus.DefBuckets,
			},
		),

		EntityOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ordersync_entity_outcomes_total",
				Help: "Per-entity run outcomes (applied, skipped, error)",
			},
			[]string{"outcome"},
		),

		EventsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_events_applied_total",
				Help: "Total number of events applied to orders",
			},
		),

		EventsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_events_skipped_total",
				Help: "Total number of malformed or unknown events skipped",
			},
		),

		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ordersync_source_fetch_duration_seconds",
				Help:    "Duration of event source fetches, including retries",
				Buckets: prometheus.DefBuckets,
			},
		),

		FetchRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ordersync_source_fetch_retries_total",
				Help: "Total number of retried event source fetches",
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CacheRequests,
		m.Runs,
		m.RunDuration,
		m.EntityOutcomes,
		m.EventsApplied,
		m.EventsSkipped,
		m.FetchDuration,
		m.FetchRetries,
	)
	return m
}

// CacheResult counts one cache lookup.
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

// RunFinished records a completed scheduler run.
func (m *Metrics) RunFinished(seconds float64) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.RunDuration.Observe(seconds)
}

// EntityFinished records one entity's outcome and event counts.
func (m *Metrics) EntityFinished(outcome string, applied, skipped int) {
	if m == nil {
		return
	}
	m.EntityOutcomes.WithLabelValues(outcome).Inc()
	m.EventsApplied.Add(float64(applied))
	m.EventsSkipped.Add(float64(skipped))
}

// Fetched records one fetch including its retries.
func (m *Metrics) Fetched(seconds float64, retries int) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(seconds)
	m.FetchRetries.Add(float64(retries))
}

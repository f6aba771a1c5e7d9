package materialize

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for keytab materialization.
type Metrics struct {
	// Materializations counts processed identity records by outcome
	// (created, skipped, failed).
	Materializations *prometheus.CounterVec

	// MaterializationDuration observes wall time per materialized identity.
	MaterializationDuration prometheus.Histogram

	// CacheStores counts keytabs written to the reuse cache.
	CacheStores prometheus.Counter

	// OrphansRemoved counts superseded cache files deleted after a
	// cache path update.
	OrphansRemoved prometheus.Counter

	// FatalFaults counts engine-level faults that aborted a run.
	FatalFaults prometheus.Counter
}

// NewMetrics creates the materialization metrics and registers them with
// registry. A nil registry creates unregistered metrics, useful for tests.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Materializations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keymint_materializations_total",
				Help: "Total number of processed identity records by outcome",
			},
			[]string{"outcome"},
		),
		MaterializationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "keymint_materialization_duration_seconds",
				Help:    "Time spent materializing a single identity record",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheStores: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keymint_cache_stores_total",
				Help: "Total number of keytabs written to the reuse cache",
			},
		),
		OrphansRemoved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keymint_cache_orphans_removed_total",
				Help: "Total number of superseded cache files removed",
			},
		),
		FatalFaults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "keymint_fatal_faults_total",
				Help: "Total number of engine faults that aborted a run",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.Materializations,
			m.MaterializationDuration,
			m.CacheStores,
			m.OrphansRemoved,
			m.FatalFaults,
		)
	}

	return m
}

// RecordResult increments the outcome counter and observes the duration
// of one processed identity record.
func (m *Metrics) RecordResult(outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Materializations.WithLabelValues(string(outcome)).Inc()
	m.MaterializationDuration.Observe(elapsed.Seconds())
}

// RecordCacheStore increments the cache store counter.
func (m *Metrics) RecordCacheStore() {
	if m == nil {
		return
	}
	m.CacheStores.Inc()
}

// RecordOrphanRemoved increments the orphan removal counter.
func (m *Metrics) RecordOrphanRemoved() {
	if m == nil {
		return
	}
	m.OrphansRemoved.Inc()
}

// RecordFatalFault increments the fatal fault counter.
func (m *Metrics) RecordFatalFault() {
	if m == nil {
		return
	}
	m.FatalFaults.Inc()
}

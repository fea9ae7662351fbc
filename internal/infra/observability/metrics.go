package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the accounting core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	postingsTotal       *prometheus.CounterVec
	invariantViolations prometheus.Counter
	reversalsTotal      *prometheus.CounterVec
	linesToggled        *prometheus.CounterVec
	reconsFinalized     prometheus.Counter
	schedulerInstances  *prometheus.CounterVec
	backfillRuns        *prometheus.CounterVec
	auditDeliveries     *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of core operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		postingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_postings_total",
				Help: "Ledger transactions posted, by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		invariantViolations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_invariant_violations_total",
				Help: "Balance invariant failures observed after commit. Always zero in a healthy system.",
			},
		),
		reversalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reversals_total",
				Help: "Payment reversals created, by kind.",
			},
			[]string{"kind"},
		),
		linesToggled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reconciliation_lines_toggled_total",
				Help: "Bank lines cleared/uncleared against reconciliations.",
			},
			[]string{"action"},
		),
		reconsFinalized: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_reconciliations_finalized_total",
				Help: "Reconciliations finalized.",
			},
		),
		schedulerInstances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_scheduler_instances_total",
				Help: "Recurring instances processed, by outcome.",
			},
			[]string{"outcome"},
		),
		backfillRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_backfill_runs_total",
				Help: "Backfill invocations, by migration name and outcome.",
			},
			[]string{"name", "outcome"},
		),
		auditDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_audit_deliveries_total",
				Help: "Best-effort audit trail deliveries, by outcome.",
			},
			[]string{"outcome"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrPosting increments the posting counter.
func (m *Metrics) IncrPosting(txType, outcome string) {
	m.postingsTotal.WithLabelValues(txType, outcome).Inc()
}

// IncrInvariantViolation counts a post-commit balance failure.
func (m *Metrics) IncrInvariantViolation() {
	m.invariantViolations.Inc()
}

// IncrReversal increments the reversal counter for the given kind.
func (m *Metrics) IncrReversal(kind string) {
	m.reversalsTotal.WithLabelValues(kind).Inc()
}

// AddLinesToggled counts cleared/uncleared bank lines.
func (m *Metrics) AddLinesToggled(action string, n int64) {
	m.linesToggled.WithLabelValues(action).Add(float64(n))
}

// IncrReconciliationFinalized counts a finalize.
func (m *Metrics) IncrReconciliationFinalized() {
	m.reconsFinalized.Inc()
}

// IncrSchedulerInstance counts one schedule-instance outcome
// (generated, duplicate, skipped, error).
func (m *Metrics) IncrSchedulerInstance(outcome string) {
	m.schedulerInstances.WithLabelValues(outcome).Inc()
}

// IncrBackfillRun counts one backfill invocation outcome.
func (m *Metrics) IncrBackfillRun(name, outcome string) {
	m.backfillRuns.WithLabelValues(name, outcome).Inc()
}

// IncrAuditDelivery counts an audit-sink delivery attempt outcome.
func (m *Metrics) IncrAuditDelivery(outcome string) {
	m.auditDeliveries.WithLabelValues(outcome).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// SchedulerInstanceCount reads back the current value of a scheduler outcome
// counter. Used by the batch-run summary endpoint and by tests.
func (m *Metrics) SchedulerInstanceCount(outcome string) float64 {
	return getCounterValue(m.schedulerInstances, outcome)
}

// AuditDeliveryCount reads back an audit delivery counter.
func (m *Metrics) AuditDeliveryCount(outcome string) float64 {
	return getCounterValue(m.auditDeliveries, outcome)
}

// InvariantViolationCount reads back the invariant-violation counter.
func (m *Metrics) InvariantViolationCount() float64 {
	mt := &dto.Metric{}
	if err := m.invariantViolations.Write(mt); err != nil {
		return 0
	}
	if mt.Counter != nil && mt.Counter.Value != nil {
		return *mt.Counter.Value
	}
	return 0
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

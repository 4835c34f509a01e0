// Package metrics exposes Prometheus instruments for the profile store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upsert outcomes.
const (
	OutcomeCreated = "created"
	OutcomeMerged  = "merged"
	OutcomeFailed  = "failed"
)

// Load fallback reasons.
const (
	ReasonNotFound = "not_found"
	ReasonCorrupt  = "corrupt"
)

// Metrics provides observability for the store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Upserts           *prometheus.CounterVec
	Migrations        *prometheus.CounterVec
	LoadFallbacks     *prometheus.CounterVec
	SaveFailures      prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Upserts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_upserts_total",
			Help: "Total number of person upserts by outcome",
		}, []string{"outcome"}),
		Migrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_migrations_total",
			Help: "Total number of documents upgraded, by source generation",
		}, []string{"from"}),
		LoadFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_load_fallbacks_total",
			Help: "Loads that fell back to an empty store, by reason",
		}, []string{"reason"}),
		SaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "roster_save_failures_total",
			Help: "Total number of failed document writes",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_operation_duration_seconds",
			Help:    "Duration of store operations including load and save",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op"}),
	}
}

// IncrementUpsert records an upsert outcome.
func (m *Metrics) IncrementUpsert(outcome string) {
	if m == nil {
		return
	}
	m.Upserts.WithLabelValues(outcome).Inc()
}

// IncrementMigration records an upgrade from the given generation.
func (m *Metrics) IncrementMigration(from string) {
	if m == nil {
		return
	}
	m.Migrations.WithLabelValues(from).Inc()
}

// IncrementLoadFallback records a load that returned an empty store.
func (m *Metrics) IncrementLoadFallback(reason string) {
	if m == nil {
		return
	}
	m.LoadFallbacks.WithLabelValues(reason).Inc()
}

// IncrementSaveFailure records a failed write.
func (m *Metrics) IncrementSaveFailure() {
	if m == nil {
		return
	}
	m.SaveFailures.Inc()
}

// ObserveOperation records the duration of a store operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(op string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

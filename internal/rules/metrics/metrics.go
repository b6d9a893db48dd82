package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the composite rule engine.
type Metrics struct {
	// Rule evaluations by outcome (passed / failed).
	Evaluations *prometheus.CounterVec

	// Lifecycle operations (created / enabled / disabled / deleted).
	LifecycleOps *prometheus.CounterVec
}

// New creates a Metrics instance with all composite rule metrics registered.
func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_composite_rule_evaluations_total",
			Help: "Total composite rule evaluations by outcome",
		}, []string{"outcome"}),

		LifecycleOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_composite_rule_lifecycle_total",
			Help: "Composite rule lifecycle operations",
		}, []string{"operation"}),
	}
}

// IncEvaluation records one rule evaluation.
func (m *Metrics) IncEvaluation(passed bool) {
	if m != nil {
		outcome := "failed"
		if passed {
			outcome = "passed"
		}
		m.Evaluations.WithLabelValues(outcome).Inc()
	}
}

// IncLifecycle records a lifecycle operation.
func (m *Metrics) IncLifecycle(operation string) {
	if m != nil {
		m.LifecycleOps.WithLabelValues(operation).Inc()
	}
}

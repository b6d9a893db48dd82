package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for transfer orchestration.
type Metrics struct {
	// Validations by mode (simulate / execute) and outcome (valid / invalid).
	Validations *prometheus.CounterVec

	// Violations by rule across all validations.
	Violations *prometheus.CounterVec

	// Executed transfers.
	Executions prometheus.Counter

	// End-to-end validation latency including evidence gathering and the
	// ledger write.
	ValidationLatency prometheus.Histogram
}

// New creates a Metrics instance with all transfer metrics registered.
func New() *Metrics {
	return &Metrics{
		Validations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_transfer_validations_total",
			Help: "Total transfer validations by mode and outcome",
		}, []string{"mode", "outcome"}),

		Violations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_transfer_violations_total",
			Help: "Transfer rule violations by rule",
		}, []string{"rule"}),

		Executions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custos_transfer_executions_total",
			Help: "Successfully executed transfers",
		}),

		ValidationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custos_transfer_validation_duration_seconds",
			Help:    "Duration of transfer validations",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}
}

// IncValidation records one validation.
func (m *Metrics) IncValidation(mode string, valid bool) {
	if m != nil {
		outcome := "invalid"
		if valid {
			outcome = "valid"
		}
		m.Validations.WithLabelValues(mode, outcome).Inc()
	}
}

// IncViolation records one rule violation.
func (m *Metrics) IncViolation(rule string) {
	if m != nil {
		m.Violations.WithLabelValues(rule).Inc()
	}
}

// IncExecution records an executed transfer.
func (m *Metrics) IncExecution() {
	if m != nil {
		m.Executions.Inc()
	}
}

// ObserveValidation records validation duration in seconds.
func (m *Metrics) ObserveValidation(seconds float64) {
	if m != nil {
		m.ValidationLatency.Observe(seconds)
	}
}

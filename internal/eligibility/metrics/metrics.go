package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for eligibility evaluation.
type Metrics struct {
	// Evaluations by outcome (eligible / ineligible).
	Evaluations *prometheus.CounterVec

	// Failed checks by rule name.
	CheckFailures *prometheus.CounterVec

	// Evaluation latency including the ledger write.
	EvaluationLatency prometheus.Histogram
}

// New creates a Metrics instance with all eligibility metrics registered.
func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_eligibility_evaluations_total",
			Help: "Total eligibility evaluations by outcome",
		}, []string{"outcome"}),

		CheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_eligibility_check_failures_total",
			Help: "Failed eligibility checks by rule",
		}, []string{"rule"}),

		EvaluationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custos_eligibility_evaluation_duration_seconds",
			Help:    "Duration of eligibility evaluations including the ledger write",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncEvaluation records a completed evaluation.
func (m *Metrics) IncEvaluation(eligible bool) {
	if m != nil {
		outcome := "ineligible"
		if eligible {
			outcome = "eligible"
		}
		m.Evaluations.WithLabelValues(outcome).Inc()
	}
}

// IncCheckFailure records a failed check.
func (m *Metrics) IncCheckFailure(rule string) {
	if m != nil {
		m.CheckFailures.WithLabelValues(rule).Inc()
	}
}

// ObserveEvaluation records evaluation duration in seconds.
func (m *Metrics) ObserveEvaluation(seconds float64) {
	if m != nil {
		m.EvaluationLatency.Observe(seconds)
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision ledger.
type Metrics struct {
	// Records appended by decision type and result.
	RecordsAppended *prometheus.CounterVec

	// Append latency including sequence assignment.
	AppendLatency prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custos_ledger_records_total",
			Help: "Total decision records appended by type and result",
		}, []string{"decision_type", "result"}),

		AppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custos_ledger_append_duration_seconds",
			Help:    "Duration of ledger appends including sequence assignment",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncRecord records an appended decision.
func (m *Metrics) IncRecord(decisionType, result string) {
	if m != nil {
		m.RecordsAppended.WithLabelValues(decisionType, result).Inc()
	}
}

// ObserveAppend records append duration in seconds.
func (m *Metrics) ObserveAppend(seconds float64) {
	if m != nil {
		m.AppendLatency.Observe(seconds)
	}
}

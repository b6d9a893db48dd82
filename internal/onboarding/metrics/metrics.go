// Package metrics registers onboarding lifecycle instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks onboarding lifecycle activity. All methods are safe on a nil
// receiver so tests can pass nil.
type Metrics struct {
	Submissions    prometheus.Counter
	Transitions    *prometheus.CounterVec
	AllocatedUnits prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "custos",
			Subsystem: "onboarding",
			Name:      "submissions_total",
			Help:      "Total onboarding applications submitted.",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custos",
			Subsystem: "onboarding",
			Name:      "transitions_total",
			Help:      "Total status transitions by target status.",
		}, []string{"to"}),
		AllocatedUnits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "custos",
			Subsystem: "onboarding",
			Name:      "allocated_units_total",
			Help:      "Total units allocated from unallocated pools.",
		}),
	}
}

func (m *Metrics) IncSubmission() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
}

func (m *Metrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) AddAllocatedUnits(units int64) {
	if m == nil {
		return
	}
	m.AllocatedUnits.Add(float64(units))
}

package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records gate decisions for the /metrics endpoint.
type Metrics struct {
	QuotaRejections   *prometheus.CounterVec
	Deductions        *prometheus.CounterVec
	DeductionFailures prometheus.Counter
}

// NewMetrics registers the gate collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QuotaRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "gate",
			Name:      "quota_rejections_total",
			Help:      "Requests rejected for an exhausted credit pool, by capability.",
		}, []string{"capability"}),
		Deductions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "gate",
			Name:      "deductions_total",
			Help:      "Credits deducted after successful jobs, by capability.",
		}, []string{"capability"}),
		DeductionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "gate",
			Name:      "deduction_failures_total",
			Help:      "Deductions that could not be persisted after a successful job.",
		}),
	}
}

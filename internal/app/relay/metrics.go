package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records relay activity for the /metrics endpoint.
type Metrics struct {
	StreamsStarted  *prometheus.CounterVec
	StreamsFinished *prometheus.CounterVec
	EventsForwarded *prometheus.CounterVec
	MalformedLines  prometheus.Counter
	SimulatedRuns   *prometheus.CounterVec
}

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StreamsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "relay",
			Name:      "streams_started_total",
			Help:      "Streamed operations opened, by capability and mode.",
		}, []string{"capability", "mode"}),
		StreamsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "relay",
			Name:      "streams_finished_total",
			Help:      "Streamed operations finished, by capability and outcome.",
		}, []string{"capability", "outcome"}),
		EventsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "relay",
			Name:      "events_forwarded_total",
			Help:      "Progress events delivered to callers, by capability.",
		}, []string{"capability"}),
		MalformedLines: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "relay",
			Name:      "malformed_lines_total",
			Help:      "Backend stream lines that failed to parse and were skipped.",
		}),
		SimulatedRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "speaker_split",
			Subsystem: "relay",
			Name:      "simulated_runs_total",
			Help:      "Operations served by the simulator instead of the backend.",
		}, []string{"capability"}),
	}
}

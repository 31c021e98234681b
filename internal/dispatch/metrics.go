package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	// Sends counts adapter send outcomes by channel.
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_sends_total", Help: "Reminder send outcomes"},
		[]string{"channel", "outcome"},
	)
	// ClaimConflicts counts claims lost to a concurrent writer.
	ClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reminder_claim_conflicts_total", Help: "Reminder claims lost to a concurrent writer"},
	)
	// StaleRequeued counts sending rows reverted to pending by crash recovery.
	StaleRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reminder_stale_requeued_total", Help: "Stuck sending rows reverted to pending"},
	)
	// SweepDuration observes how long each dispatch sweep takes.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "reminder_sweep_duration_seconds", Help: "Dispatch sweep latency"},
	)
)

// RegisterMetrics registers the dispatch metrics with a Prometheus registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Sends, ClaimConflicts, StaleRequeued, SweepDuration)
}

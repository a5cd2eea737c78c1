package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	sweepMatch  = "match"
	sweepExpiry = "expiry"

	resultOK      = "ok"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	sweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "autodaft_sweep_duration_seconds",
			Help:    "Duration of scheduler sweeps in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"sweep"},
	)

	// sweepsTotal counts sweeps by kind and result (ok|error|skipped).
	sweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodaft_sweeps_total",
			Help: "Scheduler sweeps by kind and result.",
		},
		[]string{"sweep", "result"},
	)
)

func init() {
	prometheus.MustRegister(sweepDuration, sweepsTotal)
}

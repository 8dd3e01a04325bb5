package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the cron scheduler.
type Metrics struct {
	JobsFired    prometheus.Counter
	JobsFailed   prometheus.Counter
	TickDuration prometheus.Histogram
}

// NewMetrics creates and registers scheduler metrics on the given
// registry. Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		JobsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "scheduler",
			Name:      "jobs_fired_total",
			Help:      "Total cron jobs fired.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "scheduler",
			Name:      "jobs_failed_total",
			Help:      "Total cron job executions that failed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blimp",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Poll cycle duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}

	reg.MustRegister(m.JobsFired, m.JobsFailed, m.TickDuration)
	return m
}

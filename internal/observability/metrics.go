package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Blimp.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Planner metrics.
	PromptsAnalyzedTotal *prometheus.CounterVec

	// Engine metrics.
	StepsTotal          *prometheus.CounterVec
	TokenRefreshesTotal *prometheus.CounterVec

	// Workflow metrics.
	WorkflowsTotal   *prometheus.CounterVec
	WorkflowDuration *prometheus.HistogramVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blimp",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "direction"}),

		PromptsAnalyzedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "planner",
			Name:      "prompts_analyzed_total",
			Help:      "Total prompts analyzed by resulting workflow type.",
		}, []string{"workflow_type"}),

		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "engine",
			Name:      "steps_total",
			Help:      "Total executed plan steps.",
		}, []string{"app", "function", "status"}),

		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "credentials",
			Name:      "token_refreshes_total",
			Help:      "Total OAuth token refresh attempts.",
		}, []string{"app", "status"}),

		WorkflowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "workflow",
			Name:      "executions_total",
			Help:      "Total workflow executions by final status.",
		}, []string{"status"}),

		WorkflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blimp",
			Subsystem: "workflow",
			Name:      "execution_duration_seconds",
			Help:      "Workflow execution duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blimp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blimp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blimp",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	reg.MustRegister(
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.PromptsAnalyzedTotal,
		m.StepsTotal,
		m.TokenRefreshesTotal,
		m.WorkflowsTotal,
		m.WorkflowDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

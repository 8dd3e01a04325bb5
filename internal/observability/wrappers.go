package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/llm"
	"github.com/jkaninda/blimp/internal/orchestrator"
)

// --- InstrumentedProvider ---

// InstrumentedProvider wraps an llm.Provider with metrics, tracing, and
// anomaly detection.
type InstrumentedProvider struct {
	inner   llm.Provider
	metrics *MetricsCollector
	tracer  trace.Tracer
	anomaly *AnomalyDetector
}

// NewInstrumentedProvider wraps an LLM provider with observability.
func NewInstrumentedProvider(inner llm.Provider, metrics *MetricsCollector, ts *TracerSetup, anomaly *AnomalyDetector) *InstrumentedProvider {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedProvider{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
		anomaly: anomaly,
	}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	provider := p.inner.Name()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "llm.complete",
			trace.WithAttributes(
				attribute.String("llm.provider", provider),
			))
		defer span.End()
	}

	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		if p.tracer != nil {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}

	if p.metrics != nil {
		p.metrics.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
		p.metrics.LLMRequestDuration.WithLabelValues(provider).Observe(duration)

		if resp != nil {
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "input").Add(float64(resp.Usage.InputTokens))
			p.metrics.LLMTokensUsed.WithLabelValues(provider, "output").Add(float64(resp.Usage.OutputTokens))
		}
	}

	if p.anomaly != nil {
		if err != nil {
			p.anomaly.RecordError("llm_request")
		} else {
			p.anomaly.RecordSuccess("llm_request")
		}
	}

	return resp, err
}

// --- EngineMetrics ---

// EngineMetrics adapts the collector to the engine's metrics interface
// and feeds step outcomes to the anomaly detector.
type EngineMetrics struct {
	metrics *MetricsCollector
	anomaly *AnomalyDetector
}

// NewEngineMetrics creates an engine metrics sink. Either argument may be nil.
func NewEngineMetrics(metrics *MetricsCollector, anomaly *AnomalyDetector) *EngineMetrics {
	return &EngineMetrics{metrics: metrics, anomaly: anomaly}
}

func (e *EngineMetrics) StepExecuted(app, function string, success bool) {
	if e.metrics != nil {
		e.metrics.StepsTotal.WithLabelValues(app, function, boolStatus(success)).Inc()
	}
	if e.anomaly != nil {
		op := app + "." + function
		if success {
			e.anomaly.RecordSuccess(op)
		} else {
			e.anomaly.RecordError(op)
		}
	}
}

func (e *EngineMetrics) TokenRefreshed(app string, success bool) {
	if e.metrics != nil {
		e.metrics.TokenRefreshesTotal.WithLabelValues(app, boolStatus(success)).Inc()
	}
}

// --- OrchestratorMetrics ---

// OrchestratorMetrics adapts the collector to the orchestrator's metrics interface.
type OrchestratorMetrics struct {
	metrics *MetricsCollector
}

// NewOrchestratorMetrics creates an orchestration metrics sink.
func NewOrchestratorMetrics(metrics *MetricsCollector) *OrchestratorMetrics {
	return &OrchestratorMetrics{metrics: metrics}
}

func (o *OrchestratorMetrics) PromptAnalyzed(workflowType string) {
	if o.metrics != nil {
		o.metrics.PromptsAnalyzedTotal.WithLabelValues(workflowType).Inc()
	}
}

func (o *OrchestratorMetrics) WorkflowExecuted(status string, duration time.Duration) {
	if o.metrics != nil {
		o.metrics.WorkflowsTotal.WithLabelValues(status).Inc()
		o.metrics.WorkflowDuration.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// --- Compile-time interface checks ---

var (
	_ llm.Provider         = (*InstrumentedProvider)(nil)
	_ engine.Metrics       = (*EngineMetrics)(nil)
	_ orchestrator.Metrics = (*OrchestratorMetrics)(nil)
)

func boolStatus(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}

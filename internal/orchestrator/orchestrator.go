// Package orchestrator coordinates the full prompt-to-execution flow:
// analyze a prompt into a plan, report app readiness, persist the
// workflow, and run it through the execution engine. The HTTP gateway,
// the cron scheduler, and the MCP server all drive this service.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/plan"
	"github.com/jkaninda/blimp/internal/workflow"
)

// Sentinel errors callers branch on for HTTP status mapping.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Planner produces a plan from a prompt. *planner.Planner satisfies it.
type Planner interface {
	Analyze(ctx context.Context, prompt string, connectedApps []string) (*plan.Plan, error)
}

// Executor runs a plan. *engine.Engine satisfies it.
type Executor interface {
	Execute(ctx context.Context, userID string, p *plan.Plan, overrides map[string]any) *engine.Outcome
}

// Metrics receives orchestration counters. Nil-safe via the noop default.
type Metrics interface {
	PromptAnalyzed(workflowType string)
	WorkflowExecuted(status string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) PromptAnalyzed(string)                   {}
func (noopMetrics) WorkflowExecuted(string, time.Duration) {}

// Service wires the planner, the engine, and the stores together.
type Service struct {
	planner    Planner
	executor   Executor
	workflows  workflow.Store
	executions workflow.ExecutionStore
	creds      credentials.Store
	logger     *slog.Logger
	metrics    Metrics
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches an orchestration metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the service time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(p Planner, e Executor, workflows workflow.Store, executions workflow.ExecutionStore, creds credentials.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		planner:    p,
		executor:   e,
		workflows:  workflows,
		executions: executions,
		creds:      creds,
		logger:     logger,
		metrics:    noopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analysis is the outcome of analyzing one prompt.
type Analysis struct {
	Workflow  *workflow.Workflow `json:"workflow"`
	Readiness *engine.Readiness  `json:"readiness"`
}

// AnalyzePrompt turns a prompt into a saved workflow plus a per-app
// connection report. Error-typed plans are returned to the caller
// unsaved; there is nothing to execute later.
func (s *Service) AnalyzePrompt(ctx context.Context, userID, prompt string) (*Analysis, error) {
	connected, err := s.creds.ConnectedApps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected apps: %w", err)
	}

	pl, err := s.planner.Analyze(ctx, prompt, connected)
	if err != nil {
		return nil, err
	}
	s.metrics.PromptAnalyzed(string(pl.WorkflowType))

	a := &Analysis{
		Workflow:  &workflow.Workflow{UserID: userID, Prompt: prompt, Plan: pl},
		Readiness: engine.CheckApps(pl.RequiredApps, connected),
	}
	if pl.WorkflowType == plan.WorkflowError {
		return a, nil
	}

	now := s.now().UTC()
	a.Workflow.ID = uuid.New()
	a.Workflow.CreatedAt = now
	a.Workflow.UpdatedAt = now
	if err := s.workflows.Create(ctx, a.Workflow); err != nil {
		return nil, fmt.Errorf("save workflow: %w", err)
	}
	s.logger.Info("workflow saved",
		slog.String("workflow_id", a.Workflow.ID.String()),
		slog.String("user_id", userID),
		slog.Int("steps", len(pl.FunctionCalls)))
	return a, nil
}

// ExecuteWorkflow runs a saved workflow by ID for its owner.
func (s *Service) ExecuteWorkflow(ctx context.Context, userID string, workflowID uuid.UUID, overrides map[string]any) (*workflow.Execution, error) {
	wf, err := s.workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if wf.UserID != userID {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrForbidden)
	}
	return s.run(ctx, userID, workflowID, wf.Plan, overrides)
}

// ExecutePlan runs an ad hoc plan that was never saved.
func (s *Service) ExecutePlan(ctx context.Context, userID string, p *plan.Plan, overrides map[string]any) (*workflow.Execution, error) {
	return s.run(ctx, userID, uuid.Nil, p, overrides)
}

func (s *Service) run(ctx context.Context, userID string, workflowID uuid.UUID, p *plan.Plan, overrides map[string]any) (*workflow.Execution, error) {
	started := s.now().UTC()
	ex := &workflow.Execution{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		UserID:     userID,
		Status:     workflow.StatusRunning,
		Steps:      []engine.StepResult{},
		StartedAt:  started,
	}
	if err := s.executions.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	out := s.executor.Execute(ctx, userID, p, overrides)

	finished := s.now().UTC()
	ex.Status = out.Status
	ex.Message = out.Message
	ex.Steps = out.Steps
	ex.FinishedAt = &finished
	// The engine already ran with real side effects; a failed save must
	// not hide the outcome from the caller. Log and return the record.
	if err := s.executions.Update(ctx, ex); err != nil {
		s.logger.Error("persisting execution outcome failed",
			slog.String("execution_id", ex.ID.String()),
			slog.String("user_id", userID),
			slog.String("status", out.Status),
			slog.String("error", err.Error()))
	}
	s.metrics.WorkflowExecuted(out.Status, finished.Sub(started))
	s.logger.Info("workflow executed",
		slog.String("execution_id", ex.ID.String()),
		slog.String("user_id", userID),
		slog.String("status", out.Status),
		slog.Int("steps", len(out.Steps)))
	return ex, nil
}

// GetExecution returns an execution, enforcing ownership.
func (s *Service) GetExecution(ctx context.Context, userID string, id uuid.UUID) (*workflow.Execution, error) {
	ex, err := s.executions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
	}
	if ex.UserID != userID {
		return nil, fmt.Errorf("execution %s: %w", id, ErrForbidden)
	}
	return ex, nil
}

// GetWorkflow returns a saved workflow, enforcing ownership.
func (s *Service) GetWorkflow(ctx context.Context, userID string, id uuid.UUID) (*workflow.Workflow, error) {
	wf, err := s.workflows.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if wf.UserID != userID {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrForbidden)
	}
	return wf, nil
}

// ListWorkflows returns the user's saved workflows, newest first.
func (s *Service) ListWorkflows(ctx context.Context, userID string, limit int) ([]workflow.Workflow, error) {
	return s.workflows.ListByUser(ctx, userID, limit)
}

// ListExecutions returns the user's executions, newest first.
func (s *Service) ListExecutions(ctx context.Context, userID string, limit int) ([]workflow.Execution, error) {
	return s.executions.ListByUser(ctx, userID, limit)
}

// ConnectApp stores an app credential payload for the user. The payload
// must carry an access token in one of the accepted shapes.
func (s *Service) ConnectApp(ctx context.Context, userID, app string, payload map[string]any) error {
	rec := credentials.Normalize(payload)
	if rec.AccessToken == "" {
		return errors.New("payload carries no access token")
	}
	if err := s.creds.Put(ctx, userID, app, rec); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	s.logger.Info("app connected",
		slog.String("user_id", userID),
		slog.String("app", app),
		slog.Bool("has_refresh_token", rec.RefreshToken != ""),
		slog.Bool("has_expiry", rec.HasExpiry))
	return nil
}

// DisconnectApp removes the stored credential for an app.
func (s *Service) DisconnectApp(ctx context.Context, userID, app string) error {
	return s.creds.Delete(ctx, userID, app)
}

// ConnectedApps lists the apps the user has credentials for.
func (s *Service) ConnectedApps(ctx context.Context, userID string) ([]string, error) {
	return s.creds.ConnectedApps(ctx, userID)
}

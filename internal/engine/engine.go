// Package engine executes validated workflow plans: one function call
// per step, in order, against live third-party APIs with the user's
// OAuth credentials. A failing step is recorded and the loop moves on;
// nothing short of a finished loop decides the overall status.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/plan"
)

// Execution statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial_success"
	StatusError   = "error"
)

// Dispatcher routes an (app, function) pair to its implementation.
// *capability.Registry satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, app, name, token string, params map[string]any) (*capability.Result, error)
}

// TokenRefresher exchanges an expired credential for a fresh one.
// *credentials.Refresher satisfies it.
type TokenRefresher interface {
	Refresh(ctx context.Context, userID, app string, rec *credentials.Record) (*credentials.Record, error)
}

// Metrics receives execution counters. Nil-safe via the noop default.
type Metrics interface {
	StepExecuted(app, function string, success bool)
	TokenRefreshed(app string, success bool)
}

type noopMetrics struct{}

func (noopMetrics) StepExecuted(string, string, bool) {}
func (noopMetrics) TokenRefreshed(string, bool)       {}

// StepResult records the outcome of one executed plan step.
type StepResult struct {
	Step              int    `json:"step"`
	App               string `json:"app"`
	Function          string `json:"function"`
	Description       string `json:"description,omitempty"`
	Success           bool   `json:"success"`
	Data              any    `json:"data,omitempty"`
	Error             string `json:"error,omitempty"`
	RequiresReconnect bool   `json:"requires_reconnect,omitempty"`
	DurationMS        int64  `json:"duration_ms"`
}

// Outcome is the complete result of running a plan.
type Outcome struct {
	Status        string         `json:"status"`
	Message       string         `json:"message,omitempty"`
	Steps         []StepResult   `json:"steps"`
	StoredResults map[string]any `json:"stored_results,omitempty"`
}

// Engine runs plans.
type Engine struct {
	dispatcher Dispatcher
	creds      credentials.Store
	refresher  TokenRefresher
	logger     *slog.Logger
	metrics    Metrics
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics attaches an execution metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(d Dispatcher, creds credentials.Store, refresher TokenRefresher, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e := &Engine{
		dispatcher: d,
		creds:      creds,
		refresher:  refresher,
		logger:     logger,
		metrics:    noopMetrics{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every step of p for userID. Step failures are recorded
// and execution continues; the loop itself never aborts. overrides are
// merged into each step's parameters before reference resolution, and
// an override value always wins over the planned one.
func (e *Engine) Execute(ctx context.Context, userID string, p *plan.Plan, overrides map[string]any) *Outcome {
	if p == nil || p.WorkflowType == plan.WorkflowError {
		msg := "plan analysis failed"
		if p != nil && p.Reasoning != "" {
			msg = p.Reasoning
		}
		return &Outcome{Status: StatusError, Message: msg, Steps: []StepResult{}}
	}
	if p.IsEmpty() {
		return &Outcome{Status: StatusError, Message: "plan contains no steps", Steps: []StepResult{}}
	}

	stored := map[string]any{}
	tokens := map[string]string{}
	steps := make([]StepResult, 0, len(p.FunctionCalls))
	allOK := true

	for i := range p.FunctionCalls {
		st := &p.FunctionCalls[i]
		sr := e.runStep(ctx, userID, st, overrides, stored, tokens)
		steps = append(steps, sr)
		if !sr.Success {
			allOK = false
			e.logger.Warn("step failed",
				slog.String("user_id", userID),
				slog.Int("step", sr.Step),
				slog.String("call", st.Call()),
				slog.String("error", sr.Error))
			continue
		}
		if st.StoreResultAs != "" {
			stored[st.StoreResultAs] = sr.Data
		}
	}

	status := StatusPartial
	if allOK {
		status = StatusSuccess
	}
	return &Outcome{Status: status, Steps: steps, StoredResults: stored}
}

func (e *Engine) runStep(ctx context.Context, userID string, st *plan.Step, overrides, stored map[string]any, tokens map[string]string) StepResult {
	start := e.now()
	sr := StepResult{Step: st.Step, App: st.App, Function: st.Function, Description: st.Description}
	defer func() {
		sr.DurationMS = e.now().Sub(start).Milliseconds()
		e.metrics.StepExecuted(st.App, st.Function, sr.Success)
	}()

	params := mergeParams(st.Parameters, overrides)
	params = ResolveParams(params, stored)

	token, ok := tokens[st.App]
	if !ok {
		var failure *StepResult
		token, failure = e.authorize(ctx, userID, st.App)
		if failure != nil {
			sr.Error = failure.Error
			sr.RequiresReconnect = failure.RequiresReconnect
			return sr
		}
		tokens[st.App] = token
	}

	res, err := e.dispatcher.Dispatch(ctx, st.App, st.Function, token, params)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	sr.Success = res.Success
	sr.Data = res.Data
	sr.Error = res.Error
	sr.RequiresReconnect = res.RequiresReconnect
	return sr
}

// authorize produces a usable access token for app, refreshing first
// when the stored record is expired. A nil failure means token is set.
func (e *Engine) authorize(ctx context.Context, userID, app string) (string, *StepResult) {
	rec, err := e.creds.Get(ctx, userID, app)
	if err != nil {
		return "", &StepResult{
			Error:             "app " + app + " is not connected: " + err.Error(),
			RequiresReconnect: true,
		}
	}
	if rec.Expired(e.now()) {
		fresh, err := e.refresher.Refresh(ctx, userID, app, rec)
		e.metrics.TokenRefreshed(app, err == nil)
		if err != nil {
			return "", &StepResult{
				Error:             "token refresh failed for " + app + ": " + err.Error(),
				RequiresReconnect: true,
			}
		}
		rec = fresh
	}
	if rec.AccessToken == "" {
		return "", &StepResult{
			Error:             "no access token available for " + app,
			RequiresReconnect: true,
		}
	}
	return rec.AccessToken, nil
}

// mergeParams copies base and lays overrides on top.
func mergeParams(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

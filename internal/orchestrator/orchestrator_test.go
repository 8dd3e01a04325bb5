package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/plan"
	"github.com/jkaninda/blimp/internal/storage/memory"
	"github.com/jkaninda/blimp/internal/workflow"
)

type stubPlanner struct {
	plan *plan.Plan
	err  error

	gotPrompt    string
	gotConnected []string
}

func (p *stubPlanner) Analyze(_ context.Context, prompt string, connected []string) (*plan.Plan, error) {
	p.gotPrompt = prompt
	p.gotConnected = connected
	return p.plan, p.err
}

type stubExecutor struct {
	outcome *engine.Outcome
	calls   int
}

func (e *stubExecutor) Execute(_ context.Context, _ string, _ *plan.Plan, _ map[string]any) *engine.Outcome {
	e.calls++
	return e.outcome
}

func newService(t *testing.T, p *stubPlanner, e *stubExecutor) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	svc := New(p, e, store.Workflows(), store.Executions(), store.Credentials(), nil)
	return svc, store
}

func simplePlan() *plan.Plan {
	return &plan.Plan{
		WorkflowType: plan.WorkflowSimple,
		FunctionCalls: []plan.Step{
			{Step: 1, App: "gmail", Function: "list_messages", Parameters: map[string]any{}},
		},
		RequiredApps: []string{"gmail"},
	}
}

func TestAnalyzePrompt_SavesWorkflow(t *testing.T) {
	ctx := context.Background()
	p := &stubPlanner{plan: simplePlan()}
	svc, store := newService(t, p, &stubExecutor{})

	if err := svc.ConnectApp(ctx, "u1", "gmail", map[string]any{"access_token": "tok"}); err != nil {
		t.Fatalf("ConnectApp: %v", err)
	}

	a, err := svc.AnalyzePrompt(ctx, "u1", "check my unread email")
	if err != nil {
		t.Fatalf("AnalyzePrompt: %v", err)
	}
	if a.Workflow.ID == uuid.Nil {
		t.Fatal("workflow was not assigned an ID")
	}
	if a.Readiness.Status != engine.ReadyStatus {
		t.Errorf("readiness = %q, want %q", a.Readiness.Status, engine.ReadyStatus)
	}
	if p.gotPrompt != "check my unread email" {
		t.Errorf("planner saw prompt %q", p.gotPrompt)
	}
	if len(p.gotConnected) != 1 || p.gotConnected[0] != "gmail" {
		t.Errorf("planner saw connected apps %v", p.gotConnected)
	}

	saved, err := store.Workflows().Get(ctx, a.Workflow.ID)
	if err != nil {
		t.Fatalf("saved workflow missing: %v", err)
	}
	if saved.Prompt != "check my unread email" {
		t.Errorf("saved prompt = %q", saved.Prompt)
	}
}

func TestAnalyzePrompt_ErrorPlanNotSaved(t *testing.T) {
	ctx := context.Background()
	p := &stubPlanner{plan: plan.ErrorPlan("I could not understand the request")}
	svc, store := newService(t, p, &stubExecutor{})

	a, err := svc.AnalyzePrompt(ctx, "u1", "gibberish")
	if err != nil {
		t.Fatalf("AnalyzePrompt: %v", err)
	}
	if a.Workflow.ID != uuid.Nil {
		t.Error("error-typed plan must not be persisted")
	}
	wfs, _ := store.Workflows().ListByUser(ctx, "u1", 10)
	if len(wfs) != 0 {
		t.Errorf("store holds %d workflows, want 0", len(wfs))
	}
}

func TestAnalyzePrompt_MissingApps(t *testing.T) {
	ctx := context.Background()
	p := &stubPlanner{plan: simplePlan()}
	svc, _ := newService(t, p, &stubExecutor{})

	a, err := svc.AnalyzePrompt(ctx, "u1", "check my unread email")
	if err != nil {
		t.Fatalf("AnalyzePrompt: %v", err)
	}
	if a.Readiness.Status != engine.MissingAppsStatus {
		t.Errorf("readiness = %q, want %q", a.Readiness.Status, engine.MissingAppsStatus)
	}
	if len(a.Readiness.MissingApps) != 1 || a.Readiness.MissingApps[0] != "gmail" {
		t.Errorf("missing apps = %v", a.Readiness.MissingApps)
	}
}

func TestExecuteWorkflow_RecordsExecution(t *testing.T) {
	ctx := context.Background()
	p := &stubPlanner{plan: simplePlan()}
	exec := &stubExecutor{outcome: &engine.Outcome{
		Status: engine.StatusSuccess,
		Steps: []engine.StepResult{
			{Step: 1, App: "gmail", Function: "list_messages", Success: true},
		},
	}}
	svc, store := newService(t, p, exec)
	svc.ConnectApp(ctx, "u1", "gmail", map[string]any{"access_token": "tok"})

	a, err := svc.AnalyzePrompt(ctx, "u1", "check email")
	if err != nil {
		t.Fatalf("AnalyzePrompt: %v", err)
	}

	ex, err := svc.ExecuteWorkflow(ctx, "u1", a.Workflow.ID, nil)
	if err != nil {
		t.Fatalf("ExecuteWorkflow: %v", err)
	}
	if ex.Status != engine.StatusSuccess {
		t.Errorf("status = %q", ex.Status)
	}
	if ex.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if exec.calls != 1 {
		t.Errorf("executor calls = %d", exec.calls)
	}

	stored, err := store.Executions().Get(ctx, ex.ID)
	if err != nil {
		t.Fatalf("execution not persisted: %v", err)
	}
	if len(stored.Steps) != 1 {
		t.Errorf("persisted steps = %d", len(stored.Steps))
	}
}

func TestExecuteWorkflow_OwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	p := &stubPlanner{plan: simplePlan()}
	svc, _ := newService(t, p, &stubExecutor{outcome: &engine.Outcome{Status: engine.StatusSuccess}})
	svc.ConnectApp(ctx, "u1", "gmail", map[string]any{"access_token": "tok"})

	a, err := svc.AnalyzePrompt(ctx, "u1", "check email")
	if err != nil {
		t.Fatalf("AnalyzePrompt: %v", err)
	}

	if _, err := svc.ExecuteWorkflow(ctx, "intruder", a.Workflow.ID, nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestExecuteWorkflow_UnknownID(t *testing.T) {
	svc, _ := newService(t, &stubPlanner{}, &stubExecutor{})
	if _, err := svc.ExecuteWorkflow(context.Background(), "u1", uuid.New(), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecutePlan_AdHoc(t *testing.T) {
	ctx := context.Background()
	exec := &stubExecutor{outcome: &engine.Outcome{Status: engine.StatusPartial, Message: "1 of 2 steps failed"}}
	svc, store := newService(t, &stubPlanner{}, exec)

	ex, err := svc.ExecutePlan(ctx, "u1", simplePlan(), map[string]any{"q": "is:starred"})
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if ex.WorkflowID != uuid.Nil {
		t.Errorf("ad hoc execution must not reference a workflow, got %s", ex.WorkflowID)
	}
	if ex.Status != engine.StatusPartial {
		t.Errorf("status = %q", ex.Status)
	}
	if _, err := store.Executions().Get(ctx, ex.ID); err != nil {
		t.Errorf("execution not persisted: %v", err)
	}
}

// brokenUpdateStore persists creates but fails every update, simulating
// a database that went away mid-execution.
type brokenUpdateStore struct {
	workflow.ExecutionStore
}

func (s *brokenUpdateStore) Update(context.Context, *workflow.Execution) error {
	return errors.New("db gone")
}

func TestExecutePlan_FailedSaveKeepsOutcome(t *testing.T) {
	ctx := context.Background()
	exec := &stubExecutor{outcome: &engine.Outcome{
		Status: engine.StatusSuccess,
		Steps: []engine.StepResult{
			{Step: 1, App: "gmail", Function: "send_message", Success: true},
		},
	}}
	store := memory.NewStore()
	svc := New(&stubPlanner{}, exec, store.Workflows(),
		&brokenUpdateStore{store.Executions()}, store.Credentials(), nil)

	// The steps already ran; a failed save must not discard the outcome.
	ex, err := svc.ExecutePlan(ctx, "u1", simplePlan(), nil)
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if exec.calls != 1 {
		t.Fatalf("executor calls = %d", exec.calls)
	}
	if ex == nil {
		t.Fatal("execution outcome lost")
	}
	if ex.Status != engine.StatusSuccess {
		t.Errorf("status = %q", ex.Status)
	}
	if ex.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
	if len(ex.Steps) != 1 {
		t.Errorf("steps = %d", len(ex.Steps))
	}
}

func TestConnectApp_RejectsTokenlessPayload(t *testing.T) {
	svc, _ := newService(t, &stubPlanner{}, &stubExecutor{})
	err := svc.ConnectApp(context.Background(), "u1", "slack", map[string]any{"team": "acme"})
	if err == nil {
		t.Fatal("payload without access token must be rejected")
	}
}

func TestDisconnectApp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &stubPlanner{}, &stubExecutor{})
	svc.ConnectApp(ctx, "u1", "slack", map[string]any{"access_token": "tok"})

	if err := svc.DisconnectApp(ctx, "u1", "slack"); err != nil {
		t.Fatalf("DisconnectApp: %v", err)
	}
	apps, _ := svc.ConnectedApps(ctx, "u1")
	if len(apps) != 0 {
		t.Errorf("connected apps after disconnect = %v", apps)
	}
}

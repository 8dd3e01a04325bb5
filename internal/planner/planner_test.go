package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/llm"
	"github.com/jkaninda/blimp/internal/plan"
)

type fakeProvider struct {
	text    string
	err     error
	lastReq *llm.Request
}

func (p *fakeProvider) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.text}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func testRegistry() *capability.Registry {
	r := capability.NewRegistry()
	for _, c := range []struct{ app, name string }{
		{"gmail", "list_messages"},
		{"gmail", "send_message"},
		{"slack", "post_message"},
	} {
		r.Register(capability.Func(c.app, c.name, "does "+c.name, capability.Schema(nil),
			func(context.Context, string, map[string]any) (*capability.Result, error) {
				return capability.OK(nil), nil
			}))
	}
	return r
}

func TestAnalyze_ValidPlan(t *testing.T) {
	provider := &fakeProvider{text: `{"workflow_type":"simple","function_calls":[{"app":"gmail","function":"list_messages"}],"required_apps":["gmail"]}`}
	p := New(provider, testRegistry(), nil)

	pl, err := p.Analyze(context.Background(), "check my mail", []string{"gmail"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if pl.WorkflowType != plan.WorkflowSimple || len(pl.FunctionCalls) != 1 {
		t.Errorf("plan = %+v", pl)
	}
	if !provider.lastReq.JSONOnly {
		t.Error("planner must request JSON-only output")
	}
}

func TestAnalyze_CatalogRestrictedToConnected(t *testing.T) {
	provider := &fakeProvider{text: `{"workflow_type":"simple","function_calls":[]}`}
	p := New(provider, testRegistry(), nil)

	if _, err := p.Analyze(context.Background(), "x", []string{"gmail"}); err != nil {
		t.Fatal(err)
	}
	sys := provider.lastReq.SystemPrompt
	if !strings.Contains(sys, "gmail.list_messages") {
		t.Error("connected app functions missing from catalog")
	}
	if strings.Contains(sys, "slack.post_message") {
		t.Error("unconnected app functions must not appear in the catalog")
	}
	if !strings.Contains(sys, "not connected yet: slack") {
		t.Error("unconnected apps should still be named")
	}
}

func TestAnalyze_GarbageOutputDegrades(t *testing.T) {
	provider := &fakeProvider{text: "sorry, I cannot help with that"}
	p := New(provider, testRegistry(), nil)

	pl, err := p.Analyze(context.Background(), "x", nil)
	if err != nil {
		t.Fatalf("garbage output must not be an error: %v", err)
	}
	if pl.WorkflowType != plan.WorkflowError {
		t.Errorf("workflow_type = %q, want error", pl.WorkflowType)
	}
}

func TestAnalyze_ProviderFailure(t *testing.T) {
	p := New(&fakeProvider{err: errors.New("all providers down")}, testRegistry(), nil)
	if _, err := p.Analyze(context.Background(), "x", nil); err == nil {
		t.Fatal("provider failure must surface as an error")
	}
}

// Package planner turns a natural-language automation request into a
// validated workflow plan. It renders the capability catalog for the
// user's connected apps into the system prompt, asks the LLM provider
// for a JSON plan, and runs the defensive parser over whatever comes
// back.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/llm"
	"github.com/jkaninda/blimp/internal/plan"
)

const maxPlanTokens = 4096

// Planner produces plans from prompts.
type Planner struct {
	provider llm.Provider
	registry *capability.Registry
	logger   *slog.Logger
}

// New creates a Planner.
func New(provider llm.Provider, registry *capability.Registry, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Planner{provider: provider, registry: registry, logger: logger}
}

// Analyze asks the LLM to plan the prompt against the user's connected
// apps. The returned plan is always normalized; a plan whose
// workflow_type is "error" or whose step list is empty is a planning
// failure the caller must surface, never retry.
func (p *Planner) Analyze(ctx context.Context, prompt string, connectedApps []string) (*plan.Plan, error) {
	resp, err := p.provider.Complete(ctx, &llm.Request{
		SystemPrompt: p.systemPrompt(connectedApps),
		Prompt:       prompt,
		MaxTokens:    maxPlanTokens,
		JSONOnly:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("plan analysis: %w", err)
	}

	pl := plan.Parse(resp.Text)
	p.logger.Info("prompt analyzed",
		slog.String("workflow_type", string(pl.WorkflowType)),
		slog.Int("steps", len(pl.FunctionCalls)),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens))
	return pl, nil
}

// systemPrompt renders the planning contract plus the function catalog
// for the connected apps. Apps known to the registry but not connected
// are named so the model can still list them under required_apps.
func (p *Planner) systemPrompt(connectedApps []string) string {
	connected := map[string]bool{}
	for _, app := range connectedApps {
		connected[app] = true
	}

	var b strings.Builder
	b.WriteString(`You are an automation planner. Convert the user's request into a workflow of app function calls.

Respond with a single JSON object and nothing else:
{
  "workflow_type": "simple" or "complex",
  "function_calls": [
    {
      "step": 1,
      "app": "<app name>",
      "function": "<function name>",
      "parameters": { ... },
      "description": "<what this step does>",
      "store_result_as": "<optional key for later steps>",
      "use_results_from": ["<optional keys of earlier results>"]
    }
  ],
  "required_apps": ["<every app used>"],
  "reasoning": "<one sentence>"
}

Rules:
- Use only the functions listed in the catalog below.
- Steps run strictly in order. A later step may reference an earlier
  stored result inside string parameters as {{ key.path.to.value }}.
- If the request cannot be automated, return workflow_type "error" with
  an empty function_calls list and explain in reasoning.

`)

	b.WriteString("Function catalog for the user's connected apps:\n")
	any := false
	for _, app := range p.registry.Apps() {
		if !connected[app] {
			continue
		}
		any = true
		for _, c := range p.registry.ForApp(app) {
			schema, _ := json.Marshal(c.InputSchema())
			fmt.Fprintf(&b, "- %s.%s: %s\n  parameters: %s\n", app, c.Name(), c.Description(), schema)
		}
	}
	if !any {
		b.WriteString("(none connected)\n")
	}

	var other []string
	for _, app := range p.registry.Apps() {
		if !connected[app] {
			other = append(other, app)
		}
	}
	if len(other) > 0 {
		fmt.Fprintf(&b, "\nApps that exist but are not connected yet: %s. You may plan with them; list them in required_apps so the user is told to connect them.\n", strings.Join(other, ", "))
	}
	return b.String()
}

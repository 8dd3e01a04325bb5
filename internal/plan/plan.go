// Package plan defines the typed workflow plan produced by prompt analysis
// and the defensive parser that turns raw LLM output into a well-formed Plan.
package plan

import "fmt"

// WorkflowType classifies the analyzed request.
type WorkflowType string

const (
	WorkflowSimple  WorkflowType = "simple"
	WorkflowComplex WorkflowType = "complex"
	WorkflowError   WorkflowType = "error"
)

// UnknownCall is the sentinel app/function name assigned during normalization
// when the planner omitted the field. Dispatch rejects it; normalization never does.
const UnknownCall = "unknown"

// Plan is the complete output of prompt analysis.
type Plan struct {
	WorkflowType  WorkflowType `json:"workflow_type"`
	FunctionCalls []Step       `json:"function_calls"`
	RequiredApps  []string     `json:"required_apps"`
	Reasoning     string       `json:"reasoning,omitempty"` // Advisory free text. Never parsed.
}

// Step is one app function invocation within a Plan.
type Step struct {
	Step           int            `json:"step"` // 1-based sequence position.
	App            string         `json:"app"`
	Function       string         `json:"function"`
	Parameters     map[string]any `json:"parameters"`
	Description    string         `json:"description"`
	StoreResultAs  string         `json:"store_result_as,omitempty"`
	UseResultsFrom []string       `json:"use_results_from,omitempty"` // Advisory. Execution order is always sequence order.
}

// Call returns the "app.function" form used in execution records and logs.
func (s *Step) Call() string {
	return fmt.Sprintf("%s.%s", s.App, s.Function)
}

// IsEmpty reports whether the plan carries no executable steps.
// An empty plan with WorkflowType != error signals a planning failure
// that callers must surface rather than retry.
func (p *Plan) IsEmpty() bool {
	return len(p.FunctionCalls) == 0
}

// RequiresApp reports whether app appears in the plan's required apps.
func (p *Plan) RequiresApp(app string) bool {
	for _, a := range p.RequiredApps {
		if a == app {
			return true
		}
	}
	return false
}

// ErrorPlan builds an error-tagged Plan carrying the (bounded) raw planner
// output as reasoning. Used when every JSON extraction strategy fails.
func ErrorPlan(raw string) *Plan {
	const maxReasoning = 500
	if len(raw) > maxReasoning {
		raw = raw[:maxReasoning]
	}
	return &Plan{
		WorkflowType:  WorkflowError,
		FunctionCalls: []Step{},
		RequiredApps:  []string{},
		Reasoning:     raw,
	}
}

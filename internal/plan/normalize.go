package plan

import (
	"encoding/json"
	"strings"
)

// Parse converts untrusted planner output into a well-formed Plan.
// It never fails: when no JSON object can be recovered it returns an
// error-tagged Plan carrying the raw text as reasoning.
//
// Extraction strategies, first success wins:
//  1. the whole text is a JSON object
//  2. a fenced code block (with or without a language tag) contains one
//  3. the substring from the first '{' to the last '}' parses as one
func Parse(raw string) *Plan {
	text := strings.TrimSpace(raw)

	if p, ok := tryUnmarshal(text); ok {
		return Normalize(p)
	}
	if inner, ok := fencedBlock(text); ok {
		if p, ok := tryUnmarshal(inner); ok {
			return Normalize(p)
		}
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if p, ok := tryUnmarshal(text[start : end+1]); ok {
			return Normalize(p)
		}
	}

	return ErrorPlan(raw)
}

func tryUnmarshal(text string) (*Plan, bool) {
	var p Plan
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, false
	}
	return &p, true
}

// fencedBlock returns the interior of the first ``` fence, with any
// language tag on the opening line stripped.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	inner := rest[:end]
	// Drop a language tag like "json" on the opening line.
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		first := strings.TrimSpace(inner[:nl])
		if first != "" && !strings.ContainsAny(first, "{}") {
			inner = inner[nl+1:]
		}
	}
	return strings.TrimSpace(inner), true
}

// Normalize repairs a parsed Plan in place and returns it.
// Guarantee: every Step in the result has non-zero Step, App, Function,
// Parameters, and Description, and every referenced app appears in
// RequiredApps. Normalization only degrades information; it never fails.
func Normalize(p *Plan) *Plan {
	if p.WorkflowType == "" {
		p.WorkflowType = WorkflowSimple
	}
	if p.FunctionCalls == nil {
		p.FunctionCalls = []Step{}
	}
	if p.RequiredApps == nil {
		p.RequiredApps = []string{}
	}

	for i := range p.FunctionCalls {
		s := &p.FunctionCalls[i]
		if s.Step == 0 {
			s.Step = i + 1
		}
		if s.App == "" {
			s.App = UnknownCall
		}
		if s.Function == "" {
			s.Function = UnknownCall
		}
		if s.Parameters == nil {
			s.Parameters = map[string]any{}
		}
		if s.Description == "" {
			s.Description = "Call " + s.Call()
		}
		if s.App != UnknownCall && !p.RequiresApp(s.App) {
			p.RequiredApps = append(p.RequiredApps, s.App)
		}
	}
	return p
}

// Package llm defines the provider-agnostic interface for plan analysis
// completions.
package llm

import "context"

// Provider is the abstraction over any LLM backend (Gemini, OpenAI, ...).
type Provider interface {
	// Complete sends one prompt and returns the model's text output.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier (e.g. "gemini").
	Name() string
}

// Request is a single completion request. Plan analysis is stateless:
// one system prompt carrying the capability catalog plus one user prompt.
type Request struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	// JSONOnly asks the provider to constrain output to a JSON object
	// where the API supports it. The plan parser tolerates providers
	// that ignore it.
	JSONOnly bool
}

// Response is what the model returned.
type Response struct {
	Text  string
	Usage Usage
}

// Usage tracks token consumption for cost accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

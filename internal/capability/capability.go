// Package capability defines the dispatch table of app functions the
// execution engine can invoke. Each capability wraps one operation of a
// third-party API (send a Gmail message, create a calendar event) behind
// a uniform signature, and the registry routes (app, function) pairs
// from validated plans to the matching implementation.
package capability

import (
	"context"
	"fmt"
	"sort"
)

// Capability is one invokable app function.
type Capability interface {
	// App is the provider name ("gmail", "slack", ...).
	App() string
	// Name is the function name within the app ("send_message", ...).
	Name() string
	// Description is shown to the planner in the capability catalog.
	Description() string
	// InputSchema is the JSON Schema of the parameters object.
	InputSchema() map[string]any
	// Invoke runs the operation with the user's access token. API-level
	// failures come back inside the Result; a non-nil error means the
	// call could not be attempted or completed at the transport level.
	Invoke(ctx context.Context, token string, params map[string]any) (*Result, error)
}

// Result is the uniform outcome of a capability invocation.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// RequiresReconnect marks auth failures the user must resolve by
	// reconnecting the app. Set on 401 responses.
	RequiresReconnect bool `json:"requires_reconnect,omitempty"`
}

// OK wraps a successful API payload.
func OK(data any) *Result { return &Result{Success: true, Data: data} }

// Fail wraps a failure message.
func Fail(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Func builds a Capability from a function. App packages use it to
// declare their operations without one struct type per function.
func Func(app, name, desc string, schema map[string]any, run func(ctx context.Context, token string, params map[string]any) (*Result, error)) Capability {
	return &funcCap{app: app, name: name, desc: desc, schema: schema, run: run}
}

type funcCap struct {
	app, name, desc string
	schema          map[string]any
	run             func(ctx context.Context, token string, params map[string]any) (*Result, error)
}

func (c *funcCap) App() string                 { return c.app }
func (c *funcCap) Name() string                { return c.name }
func (c *funcCap) Description() string         { return c.desc }
func (c *funcCap) InputSchema() map[string]any { return c.schema }
func (c *funcCap) Invoke(ctx context.Context, token string, params map[string]any) (*Result, error) {
	return c.run(ctx, token, params)
}

// Registry holds all registered capabilities keyed by (app, function).
type Registry struct {
	caps map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: map[string]Capability{}}
}

func key(app, name string) string { return app + "." + name }

// Register adds a capability. Duplicate (app, function) registration is
// a programming error and panics at startup.
func (r *Registry) Register(c Capability) {
	k := key(c.App(), c.Name())
	if _, exists := r.caps[k]; exists {
		panic(fmt.Sprintf("capability %q registered twice", k))
	}
	r.caps[k] = c
}

// Lookup returns the capability for (app, name).
func (r *Registry) Lookup(app, name string) (Capability, bool) {
	c, ok := r.caps[key(app, name)]
	return c, ok
}

// Dispatch invokes (app, name) with the given token and parameters.
// An unknown pair yields a tagged failure Result, not an error, so one
// bad plan step cannot abort a workflow.
func (r *Registry) Dispatch(ctx context.Context, app, name, token string, params map[string]any) (*Result, error) {
	c, ok := r.Lookup(app, name)
	if !ok {
		return Fail("unknown function %s.%s", app, name), nil
	}
	return c.Invoke(ctx, token, params)
}

// Apps returns the sorted list of app names with registered capabilities.
func (r *Registry) Apps() []string {
	seen := map[string]bool{}
	for _, c := range r.caps {
		seen[c.App()] = true
	}
	apps := make([]string, 0, len(seen))
	for app := range seen {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// ForApp returns the app's capabilities sorted by function name.
func (r *Registry) ForApp(app string) []Capability {
	var caps []Capability
	for _, c := range r.caps {
		if c.App() == app {
			caps = append(caps, c)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name() < caps[j].Name() })
	return caps
}

package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/jkaninda/blimp/internal/capability"
)

func testRegistry() *capability.Registry {
	r := capability.NewRegistry()
	r.Register(capability.Func("gmail", "send_message", "Send an email.",
		capability.Schema(map[string]any{
			"to": capability.StrProp("Recipient email address."),
		}, "to"),
		func(ctx context.Context, token string, params map[string]any) (*capability.Result, error) {
			return capability.OK(map[string]any{"id": "msg-1"}), nil
		}))
	return r
}

func TestNewServer_Defaults(t *testing.T) {
	s, err := NewServer(Config{}, nil, testRegistry(), nil)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if s.userID != "default" {
		t.Errorf("userID = %q, want default", s.userID)
	}
	if s.logger == nil {
		t.Error("logger should default to a discard logger")
	}
}

func TestNewServer_RegistersCapabilities(t *testing.T) {
	// Registration must not fail for any schema the registry carries;
	// a panic or error here would break startup.
	if _, err := NewServer(Config{Name: "blimp", UserID: "alice"}, nil, testRegistry(), nil); err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult(map[string]any{"apps": []string{"gmail"}})
	if err != nil {
		t.Fatalf("jsonResult error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success result")
	}
	if len(res.Content) != 1 {
		t.Fatalf("content length = %d, want 1", len(res.Content))
	}
}

func TestJSONResult_Unencodable(t *testing.T) {
	res, err := jsonResult(func() {})
	if err != nil {
		t.Fatalf("jsonResult error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for unencodable value")
	}
}

func TestCapabilityToolName(t *testing.T) {
	r := testRegistry()
	for _, app := range r.Apps() {
		for _, c := range r.ForApp(app) {
			name := c.App() + "_" + c.Name()
			if strings.ContainsAny(name, " ./") {
				t.Errorf("tool name %q contains characters MCP clients reject", name)
			}
		}
	}
}

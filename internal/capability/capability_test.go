package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func stubCap(app, name string) Capability {
	return Func(app, name, "stub", Schema(nil),
		func(context.Context, string, map[string]any) (*Result, error) {
			return OK("ran " + app + "." + name), nil
		})
}

func TestRegistry_DispatchKnown(t *testing.T) {
	r := NewRegistry()
	r.Register(stubCap("gmail", "send_message"))

	res, err := r.Dispatch(context.Background(), "gmail", "send_message", "tok", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !res.Success || res.Data != "ran gmail.send_message" {
		t.Errorf("res = %+v", res)
	}
}

func TestRegistry_DispatchUnknown(t *testing.T) {
	r := NewRegistry()
	res, err := r.Dispatch(context.Background(), "gmail", "teleport", "tok", nil)
	if err != nil {
		t.Fatalf("unknown function must not return an error, got %v", err)
	}
	if res.Success {
		t.Fatal("unknown function must fail")
	}
	if res.Error == "" {
		t.Error("failure must carry a message naming the function")
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration must panic")
		}
	}()
	r := NewRegistry()
	r.Register(stubCap("slack", "post_message"))
	r.Register(stubCap("slack", "post_message"))
}

func TestRegistry_AppsAndForApp(t *testing.T) {
	r := NewRegistry()
	r.Register(stubCap("slack", "post_message"))
	r.Register(stubCap("slack", "list_channels"))
	r.Register(stubCap("gmail", "send_message"))

	apps := r.Apps()
	if len(apps) != 2 || apps[0] != "gmail" || apps[1] != "slack" {
		t.Errorf("Apps = %v", apps)
	}
	caps := r.ForApp("slack")
	if len(caps) != 2 || caps[0].Name() != "list_channels" {
		t.Errorf("ForApp(slack) = %v", caps)
	}
}

func TestInvokeJSON_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	res, err := InvokeJSON(context.Background(), srv.Client(), http.MethodGet, srv.URL, "bad-token", nil, nil)
	if err != nil {
		t.Fatalf("InvokeJSON: %v", err)
	}
	if res.Success || !res.RequiresReconnect {
		t.Errorf("401 must produce a reconnect-tagged failure, got %+v", res)
	}
}

func TestInvokeJSON_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	res, err := InvokeJSON(context.Background(), srv.Client(), http.MethodGet, srv.URL, "tok", nil, nil)
	if err != nil {
		t.Fatalf("InvokeJSON: %v", err)
	}
	if res.Success || res.RequiresReconnect {
		t.Errorf("500 must fail without reconnect, got %+v", res)
	}
}

func TestInvokeJSON_SuccessAndAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	res, err := InvokeJSON(context.Background(), srv.Client(), http.MethodPost, srv.URL, "tok-123", nil, map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("InvokeJSON: %v", err)
	}
	if !res.Success {
		t.Fatalf("res = %+v", res)
	}
	data, ok := res.Data.(map[string]any)
	if !ok || data["id"] != "abc" {
		t.Errorf("Data = %#v", res.Data)
	}
}

func TestInvokeJSON_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res, err := InvokeJSON(context.Background(), srv.Client(), http.MethodDelete, srv.URL, "tok", nil, nil)
	if err != nil {
		t.Fatalf("InvokeJSON: %v", err)
	}
	if !res.Success {
		t.Errorf("204 with empty body must succeed, got %+v", res)
	}
}

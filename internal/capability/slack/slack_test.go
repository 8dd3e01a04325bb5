package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jkaninda/blimp/internal/capability"
)

func testRegistry(t *testing.T, handler http.HandlerFunc) *capability.Registry {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	old := BaseURL
	BaseURL = srv.URL
	t.Cleanup(func() { BaseURL = old })

	r := capability.NewRegistry()
	Register(r, srv.Client())
	return r
}

func TestPostMessage(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/chat.postMessage" {
			t.Errorf("path = %q", req.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		if body["channel"] != "#general" {
			t.Errorf("channel = %v, want default #general", body["channel"])
		}
		if body["text"] != "standup in 5" {
			t.Errorf("text = %v", body["text"])
		}
		w.Write([]byte(`{"ok":true,"ts":"1.2"}`))
	})

	res, err := r.Dispatch(context.Background(), "slack", "post_message", "tok",
		map[string]any{"text": "standup in 5"})
	if err != nil || !res.Success {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestPostMessage_InBandFailure(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	})
	res, err := r.Dispatch(context.Background(), "slack", "post_message", "tok",
		map[string]any{"text": "hi", "channel": "#nope"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("ok=false must become a failure")
	}
	if res.RequiresReconnect {
		t.Error("channel_not_found is not an auth failure")
	}
}

func TestPostMessage_RevokedToken(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"token_revoked"}`))
	})
	res, err := r.Dispatch(context.Background(), "slack", "post_message", "tok",
		map[string]any{"text": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !res.RequiresReconnect {
		t.Errorf("token_revoked must be reconnect-tagged, got %+v", res)
	}
}

func TestGetChannelHistory(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/conversations.history" {
			t.Errorf("path = %q", req.URL.Path)
		}
		if got := req.URL.Query().Get("channel"); got != "C123" {
			t.Errorf("channel = %q", got)
		}
		w.Write([]byte(`{"ok":true,"messages":[{"text":"hello"}]}`))
	})

	res, err := r.Dispatch(context.Background(), "slack", "get_channel_history", "tok",
		map[string]any{"channel": "C123"})
	if err != nil || !res.Success {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

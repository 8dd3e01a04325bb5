package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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

func TestListMessages(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/messages" {
			t.Errorf("path = %q", req.URL.Path)
		}
		if got := req.URL.Query().Get("q"); got != "from:alice" {
			t.Errorf("q = %q", got)
		}
		if got := req.URL.Query().Get("maxResults"); got != "5" {
			t.Errorf("maxResults = %q", got)
		}
		w.Write([]byte(`{"messages":[{"id":"m1"}],"resultSizeEstimate":1}`))
	})

	res, err := r.Dispatch(context.Background(), "gmail", "list_messages", "tok",
		map[string]any{"query": "from:alice", "max_results": float64(5)})
	if err != nil || !res.Success {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestListMessages_DefaultQuery(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if got := req.URL.Query().Get("q"); got != "is:unread" {
			t.Errorf("default query = %q, want is:unread", got)
		}
		w.Write([]byte(`{"messages":[]}`))
	})
	if _, err := r.Dispatch(context.Background(), "gmail", "list_messages", "tok", map[string]any{}); err != nil {
		t.Fatal(err)
	}
}

func TestSendMessage(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/messages/send" || req.Method != http.MethodPost {
			t.Errorf("%s %s", req.Method, req.URL.Path)
		}
		var body struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		decoded, err := base64.URLEncoding.DecodeString(body.Raw)
		if err != nil {
			t.Fatalf("raw is not base64url: %v", err)
		}
		msg := string(decoded)
		if !strings.Contains(msg, "To: bob@example.com") || !strings.Contains(msg, "Subject: hi") {
			t.Errorf("mime message = %q", msg)
		}
		w.Write([]byte(`{"id":"sent-1"}`))
	})

	res, err := r.Dispatch(context.Background(), "gmail", "send_message", "tok",
		map[string]any{"to": "bob@example.com", "subject": "hi", "body": "hello"})
	if err != nil || !res.Success {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestSendMessage_MissingRecipient(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected when validation fails")
	})
	res, err := r.Dispatch(context.Background(), "gmail", "send_message", "tok", map[string]any{"subject": "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("missing recipient must fail locally")
	}
}

func TestModifyMessage(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/messages/m7/modify" {
			t.Errorf("path = %q", req.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		if _, ok := body["removeLabelIds"]; !ok {
			t.Error("removeLabelIds missing")
		}
		w.Write([]byte(`{"id":"m7"}`))
	})

	res, err := r.Dispatch(context.Background(), "gmail", "modify_message", "tok",
		map[string]any{"message_id": "m7", "remove_labels": []any{"UNREAD"}})
	if err != nil || !res.Success {
		t.Fatalf("res = %+v, err = %v", res, err)
	}
}

func TestExpiredToken(t *testing.T) {
	r := testRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":401}}`, http.StatusUnauthorized)
	})
	res, err := r.Dispatch(context.Background(), "gmail", "get_message", "stale",
		map[string]any{"message_id": "m1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || !res.RequiresReconnect {
		t.Errorf("401 must be reconnect-tagged, got %+v", res)
	}
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/plan"
)

type recordedCall struct {
	app, name, token string
	params           map[string]any
}

type stubDispatcher struct {
	calls   []recordedCall
	results map[string]*capability.Result // keyed by app.name
	err     error
}

func (d *stubDispatcher) Dispatch(_ context.Context, app, name, token string, params map[string]any) (*capability.Result, error) {
	d.calls = append(d.calls, recordedCall{app, name, token, params})
	if d.err != nil {
		return nil, d.err
	}
	if res, ok := d.results[app+"."+name]; ok {
		return res, nil
	}
	return capability.OK(map[string]any{"echo": name}), nil
}

type stubCredStore struct {
	recs map[string]*credentials.Record
}

func (s *stubCredStore) Get(_ context.Context, userID, app string) (*credentials.Record, error) {
	rec, ok := s.recs[app]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	return rec, nil
}

func (s *stubCredStore) Put(_ context.Context, _, app string, rec *credentials.Record) error {
	s.recs[app] = rec
	return nil
}

func (s *stubCredStore) Delete(_ context.Context, _, app string) error {
	delete(s.recs, app)
	return nil
}

func (s *stubCredStore) ConnectedApps(_ context.Context, _ string) ([]string, error) {
	apps := make([]string, 0, len(s.recs))
	for app := range s.recs {
		apps = append(apps, app)
	}
	return apps, nil
}

type stubRefresher struct {
	calls int
	rec   *credentials.Record
	err   error
}

func (r *stubRefresher) Refresh(_ context.Context, _, app string, _ *credentials.Record) (*credentials.Record, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rec, nil
}

func validRecord(token string) *credentials.Record {
	return credentials.Normalize(map[string]any{"access_token": token})
}

func threeStepPlan() *plan.Plan {
	return plan.Normalize(&plan.Plan{
		FunctionCalls: []plan.Step{
			{App: "gmail", Function: "list_messages", StoreResultAs: "inbox"},
			{App: "gmail", Function: "send_message"},
			{App: "slack", Function: "post_message"},
		},
	})
}

func TestExecute_AllSuccess(t *testing.T) {
	d := &stubDispatcher{}
	creds := &stubCredStore{recs: map[string]*credentials.Record{
		"gmail": validRecord("g-tok"),
		"slack": validRecord("s-tok"),
	}}
	e := New(d, creds, &stubRefresher{}, nil)

	out := e.Execute(context.Background(), "u1", threeStepPlan(), nil)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %q", out.Status)
	}
	if len(out.Steps) != 3 {
		t.Fatalf("steps = %d", len(out.Steps))
	}
	if d.calls[0].token != "g-tok" || d.calls[2].token != "s-tok" {
		t.Errorf("tokens = %q/%q", d.calls[0].token, d.calls[2].token)
	}
}

func TestExecute_MiddleStepFailureContinues(t *testing.T) {
	d := &stubDispatcher{results: map[string]*capability.Result{
		"gmail.send_message": capability.Fail("recipient rejected"),
	}}
	creds := &stubCredStore{recs: map[string]*credentials.Record{
		"gmail": validRecord("g"),
		"slack": validRecord("s"),
	}}
	e := New(d, creds, &stubRefresher{}, nil)

	out := e.Execute(context.Background(), "u1", threeStepPlan(), nil)
	if out.Status != StatusPartial {
		t.Fatalf("status = %q, want partial_success", out.Status)
	}
	if len(out.Steps) != 3 {
		t.Fatalf("all three steps must run, got %d", len(out.Steps))
	}
	if out.Steps[0].Success != true || out.Steps[1].Success != false || out.Steps[2].Success != true {
		t.Errorf("step successes = %v/%v/%v", out.Steps[0].Success, out.Steps[1].Success, out.Steps[2].Success)
	}
}

func TestExecute_ErrorPlan(t *testing.T) {
	e := New(&stubDispatcher{}, &stubCredStore{recs: map[string]*credentials.Record{}}, &stubRefresher{}, nil)
	out := e.Execute(context.Background(), "u1", plan.ErrorPlan("no valid json"), nil)
	if out.Status != StatusError {
		t.Fatalf("status = %q", out.Status)
	}
	if len(out.Steps) != 0 {
		t.Error("error plans must not execute steps")
	}
}

func TestExecute_EmptyPlan(t *testing.T) {
	e := New(&stubDispatcher{}, &stubCredStore{recs: map[string]*credentials.Record{}}, &stubRefresher{}, nil)
	out := e.Execute(context.Background(), "u1", plan.Normalize(&plan.Plan{}), nil)
	if out.Status != StatusError {
		t.Fatalf("status = %q", out.Status)
	}
}

func TestExecute_StoredResultFlowsForward(t *testing.T) {
	d := &stubDispatcher{results: map[string]*capability.Result{
		"gmail.list_messages": capability.OK(map[string]any{
			"messages": []any{map[string]any{"id": "m42"}},
		}),
	}}
	creds := &stubCredStore{recs: map[string]*credentials.Record{"gmail": validRecord("g")}}
	e := New(d, creds, &stubRefresher{}, nil)

	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{
		{App: "gmail", Function: "list_messages", StoreResultAs: "inbox"},
		{App: "gmail", Function: "get_message", Parameters: map[string]any{
			"message_id": "{{ inbox.messages[0].id }}",
		}},
	}})
	out := e.Execute(context.Background(), "u1", p, nil)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %q", out.Status)
	}
	if got := d.calls[1].params["message_id"]; got != "m42" {
		t.Errorf("message_id = %v, want resolved m42", got)
	}
	if _, ok := out.StoredResults["inbox"]; !ok {
		t.Error("stored result missing from outcome")
	}
}

func TestExecute_OverrideWins(t *testing.T) {
	d := &stubDispatcher{}
	creds := &stubCredStore{recs: map[string]*credentials.Record{"slack": validRecord("s")}}
	e := New(d, creds, &stubRefresher{}, nil)

	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{
		{App: "slack", Function: "post_message", Parameters: map[string]any{"channel": "#general", "text": "planned"}},
	}})
	e.Execute(context.Background(), "u1", p, map[string]any{"text": "overridden"})

	if got := d.calls[0].params["text"]; got != "overridden" {
		t.Errorf("text = %v, want override value", got)
	}
	if got := d.calls[0].params["channel"]; got != "#general" {
		t.Errorf("channel = %v, planned value must survive", got)
	}
}

func TestExecute_ExpiredTokenRefreshed(t *testing.T) {
	d := &stubDispatcher{}
	expired := credentials.Normalize(map[string]any{
		"access_token":  "stale",
		"refresh_token": "ref",
		"expires_at":    "2020-01-01T00:00:00Z",
	})
	creds := &stubCredStore{recs: map[string]*credentials.Record{"gmail": expired}}
	ref := &stubRefresher{rec: validRecord("fresh")}
	e := New(d, creds, ref, nil)

	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{
		{App: "gmail", Function: "list_messages"},
	}})
	out := e.Execute(context.Background(), "u1", p, nil)
	if out.Status != StatusSuccess {
		t.Fatalf("status = %q", out.Status)
	}
	if ref.calls != 1 {
		t.Errorf("refresher calls = %d, want 1", ref.calls)
	}
	if d.calls[0].token != "fresh" {
		t.Errorf("token = %q, want refreshed token", d.calls[0].token)
	}
}

func TestExecute_RefreshFailureFlagsReconnect(t *testing.T) {
	expired := credentials.Normalize(map[string]any{
		"access_token": "stale",
		"expires_at":   "2020-01-01T00:00:00Z",
	})
	creds := &stubCredStore{recs: map[string]*credentials.Record{
		"gmail": expired,
		"slack": validRecord("s"),
	}}
	ref := &stubRefresher{err: errors.New("grant revoked")}
	d := &stubDispatcher{}
	e := New(d, creds, ref, nil)

	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{
		{App: "gmail", Function: "list_messages"},
		{App: "slack", Function: "post_message"},
	}})
	out := e.Execute(context.Background(), "u1", p, nil)
	if out.Status != StatusPartial {
		t.Fatalf("status = %q", out.Status)
	}
	if !out.Steps[0].RequiresReconnect {
		t.Error("failed refresh must flag reconnect")
	}
	if !out.Steps[1].Success {
		t.Error("later step must still run")
	}
}

func TestExecute_UnconnectedApp(t *testing.T) {
	e := New(&stubDispatcher{}, &stubCredStore{recs: map[string]*credentials.Record{}}, &stubRefresher{}, nil)
	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{
		{App: "notion", Function: "create_page"},
	}})
	out := e.Execute(context.Background(), "u1", p, nil)
	if out.Status != StatusPartial {
		t.Fatalf("status = %q", out.Status)
	}
	if !out.Steps[0].RequiresReconnect {
		t.Error("missing credentials must flag reconnect")
	}
}

func TestExecute_ClockDrivenExpiry(t *testing.T) {
	// Token expires at 12:00; at 11:54:59 it is still valid, at 11:55 it
	// crosses the inclusive skew boundary.
	exp := credentials.Normalize(map[string]any{
		"access_token":  "tok",
		"refresh_token": "ref",
		"expires_at":    "2026-09-01T12:00:00Z",
	})
	ref := &stubRefresher{rec: validRecord("fresh")}
	d := &stubDispatcher{}
	creds := &stubCredStore{recs: map[string]*credentials.Record{"gmail": exp}}

	now := time.Date(2026, 9, 1, 11, 54, 59, 0, time.UTC)
	e := New(d, creds, ref, nil, WithClock(func() time.Time { return now }))
	p := plan.Normalize(&plan.Plan{FunctionCalls: []plan.Step{{App: "gmail", Function: "list_messages"}}})

	e.Execute(context.Background(), "u1", p, nil)
	if ref.calls != 0 {
		t.Fatalf("token inside validity window must not refresh, calls = %d", ref.calls)
	}

	now = time.Date(2026, 9, 1, 11, 55, 0, 0, time.UTC)
	e.Execute(context.Background(), "u1", p, nil)
	if ref.calls != 1 {
		t.Fatalf("boundary crossing must refresh exactly once, calls = %d", ref.calls)
	}
}

func TestCheckApps(t *testing.T) {
	r := CheckApps(nil, []string{"gmail"})
	if r.Status != NoAppsRequiredStatus {
		t.Errorf("status = %q", r.Status)
	}

	r = CheckApps([]string{"gmail", "slack"}, []string{"gmail"})
	if r.Status != MissingAppsStatus {
		t.Errorf("status = %q", r.Status)
	}
	if len(r.MissingApps) != 1 || r.MissingApps[0] != "slack" {
		t.Errorf("missing = %v", r.MissingApps)
	}

	r = CheckApps([]string{"gmail"}, []string{"gmail", "notion"})
	if r.Status != ReadyStatus {
		t.Errorf("status = %q", r.Status)
	}
}

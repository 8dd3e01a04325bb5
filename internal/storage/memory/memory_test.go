package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

func TestWorkflows_RoundTrip(t *testing.T) {
	s := NewStore().Workflows()
	ctx := context.Background()

	wf := &workflow.Workflow{ID: uuid.New(), UserID: "u1", Prompt: "send a mail", CreatedAt: time.Now()}
	if err := s.Create(ctx, wf); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.Get(ctx, wf.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Prompt != "send a mail" {
		t.Errorf("Prompt = %q", got.Prompt)
	}

	// Returned value is a copy, not the stored record.
	got.Prompt = "mutated"
	again, _ := s.Get(ctx, wf.ID)
	if again.Prompt != "send a mail" {
		t.Errorf("stored record mutated through returned copy")
	}

	if err := s.Delete(ctx, wf.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, wf.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestWorkflows_ListByUser(t *testing.T) {
	s := NewStore().Workflows()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		wf := &workflow.Workflow{ID: uuid.New(), UserID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Create(ctx, wf); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := s.Create(ctx, &workflow.Workflow{ID: uuid.New(), UserID: "other"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	out, err := s.ListByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if !out[0].CreatedAt.After(out[1].CreatedAt) {
		t.Errorf("list not ordered newest first")
	}
}

func TestCredentials_RoundTrip(t *testing.T) {
	s := NewStore().Credentials()
	ctx := context.Background()

	rec := credentials.Normalize(map[string]any{
		"access_token": "tok-1",
		"workspace":    "acme",
	})
	if err := s.Put(ctx, "u1", "slack", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "u1", "slack")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessToken != "tok-1" {
		t.Errorf("AccessToken = %q", got.AccessToken)
	}
	if got.Raw["workspace"] != "acme" {
		t.Errorf("unknown field lost on round trip: %v", got.Raw)
	}

	if _, err := s.Get(ctx, "u1", "gmail"); !errors.Is(err, credentials.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestCredentials_ConnectedApps(t *testing.T) {
	s := NewStore().Credentials()
	ctx := context.Background()

	for _, app := range []string{"slack", "gmail"} {
		rec := credentials.Normalize(map[string]any{"access_token": "t"})
		if err := s.Put(ctx, "u1", app, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	apps, err := s.ConnectedApps(ctx, "u1")
	if err != nil {
		t.Fatalf("ConnectedApps: %v", err)
	}
	if len(apps) != 2 || apps[0] != "gmail" || apps[1] != "slack" {
		t.Errorf("apps = %v, want sorted [gmail slack]", apps)
	}

	if err := s.Delete(ctx, "u1", "slack"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	apps, _ = s.ConnectedApps(ctx, "u1")
	if len(apps) != 1 || apps[0] != "gmail" {
		t.Errorf("apps after delete = %v", apps)
	}
}

func TestExecutions_Update(t *testing.T) {
	s := NewStore().Executions()
	ctx := context.Background()

	ex := &workflow.Execution{ID: uuid.New(), UserID: "u1", Status: workflow.StatusRunning, StartedAt: time.Now()}
	if err := s.Create(ctx, ex); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	ex.Status = "success"
	ex.FinishedAt = &now
	if err := s.Update(ctx, ex); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Get(ctx, ex.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "success" || got.FinishedAt == nil {
		t.Errorf("got = %+v", got)
	}

	if err := s.Update(ctx, &workflow.Execution{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestCronJobs_DueAndRecordRun(t *testing.T) {
	s := NewStore().CronJobs()
	ctx := context.Background()

	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &scheduler.CronJob{ID: uuid.New(), UserID: "u1", Enabled: true, NextRunAt: &past}
	notDue := &scheduler.CronJob{ID: uuid.New(), UserID: "u1", Enabled: true, NextRunAt: &future}
	disabled := &scheduler.CronJob{ID: uuid.New(), UserID: "u1", Enabled: false, NextRunAt: &past}
	for _, cj := range []*scheduler.CronJob{due, notDue, disabled} {
		if err := s.Create(ctx, cj); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	jobs, err := s.GetDueJobs(ctx, now)
	if err != nil {
		t.Fatalf("GetDueJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != due.ID {
		t.Fatalf("due jobs = %v", jobs)
	}

	execID := uuid.New()
	if err := s.RecordRun(ctx, due.ID, execID, future, ""); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, _ := s.Get(ctx, due.ID)
	if got.LastRunAt == nil || got.LastExecutionID == nil || *got.LastExecutionID != execID {
		t.Errorf("run not recorded: %+v", got)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(future) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, future)
	}

	jobs, _ = s.GetDueJobs(ctx, now)
	if len(jobs) != 0 {
		t.Errorf("job still due after RecordRun: %v", jobs)
	}
}

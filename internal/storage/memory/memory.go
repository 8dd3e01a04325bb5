// Package memory implements the storage.Store interface in process
// memory. It backs tests and the stdio MCP mode, where nothing needs to
// survive a restart.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

// ErrNotFound is returned for missing workflows, executions, and cron jobs.
var ErrNotFound = errors.New("record not found")

// Store is an in-memory storage.Store. All sub-stores share one mutex;
// contention is irrelevant at the scale this backend serves.
type Store struct {
	mu         sync.RWMutex
	creds      map[credKey]map[string]any
	workflows  map[uuid.UUID]*workflow.Workflow
	executions map[uuid.UUID]*workflow.Execution
	cronjobs   map[uuid.UUID]*scheduler.CronJob
}

type credKey struct {
	userID string
	app    string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		creds:      map[credKey]map[string]any{},
		workflows:  map[uuid.UUID]*workflow.Workflow{},
		executions: map[uuid.UUID]*workflow.Execution{},
		cronjobs:   map[uuid.UUID]*scheduler.CronJob{},
	}
}

func (s *Store) Credentials() credentials.Store      { return (*credStore)(s) }
func (s *Store) Workflows() workflow.Store           { return (*workflowStore)(s) }
func (s *Store) Executions() workflow.ExecutionStore { return (*executionStore)(s) }
func (s *Store) CronJobs() scheduler.CronJobStore    { return (*cronJobStore)(s) }

func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error    { return nil }
func (s *Store) Close() error                  { return nil }
func (s *Store) Driver() string                { return "memory" }

// credStore implements credentials.Store. Payloads are stored as raw
// maps and renormalized on read, matching the database backends.
type credStore Store

func (s *credStore) Get(_ context.Context, userID, app string) (*credentials.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.creds[credKey{userID, app}]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	return credentials.Normalize(copyMap(raw)), nil
}

func (s *credStore) Put(_ context.Context, userID, app string, rec *credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[credKey{userID, app}] = copyMap(rec.Raw)
	return nil
}

func (s *credStore) Delete(_ context.Context, userID, app string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credKey{userID, app}
	if _, ok := s.creds[key]; !ok {
		return credentials.ErrNotFound
	}
	delete(s.creds, key)
	return nil
}

func (s *credStore) ConnectedApps(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var apps []string
	for key := range s.creds {
		if key.userID == userID {
			apps = append(apps, key.app)
		}
	}
	sort.Strings(apps)
	return apps, nil
}

type workflowStore Store

func (s *workflowStore) Create(_ context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *workflowStore) Get(_ context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (s *workflowStore) ListByUser(_ context.Context, userID string, limit int) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Workflow
	for _, wf := range s.workflows {
		if wf.UserID == userID {
			out = append(out, *wf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *workflowStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

type executionStore Store

func (s *executionStore) Create(_ context.Context, ex *workflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyExecution(ex)
	s.executions[ex.ID] = cp
	return nil
}

func (s *executionStore) Update(_ context.Context, ex *workflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[ex.ID]; !ok {
		return ErrNotFound
	}
	s.executions[ex.ID] = copyExecution(ex)
	return nil
}

func (s *executionStore) Get(_ context.Context, id uuid.UUID) (*workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ex, ok := s.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyExecution(ex), nil
}

func (s *executionStore) ListByUser(_ context.Context, userID string, limit int) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []workflow.Execution
	for _, ex := range s.executions {
		if ex.UserID == userID {
			out = append(out, *copyExecution(ex))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type cronJobStore Store

func (s *cronJobStore) Create(_ context.Context, cj *scheduler.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cj
	s.cronjobs[cj.ID] = &cp
	return nil
}

func (s *cronJobStore) Get(_ context.Context, id uuid.UUID) (*scheduler.CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cj, ok := s.cronjobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cj
	return &cp, nil
}

func (s *cronJobStore) ListByUser(_ context.Context, userID string) ([]scheduler.CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scheduler.CronJob
	for _, cj := range s.cronjobs {
		if cj.UserID == userID {
			out = append(out, *cj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *cronJobStore) Update(_ context.Context, cj *scheduler.CronJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cronjobs[cj.ID]; !ok {
		return ErrNotFound
	}
	cp := *cj
	s.cronjobs[cj.ID] = &cp
	return nil
}

func (s *cronJobStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cronjobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.cronjobs, id)
	return nil
}

func (s *cronJobStore) GetDueJobs(_ context.Context, now time.Time) ([]scheduler.CronJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []scheduler.CronJob
	for _, cj := range s.cronjobs {
		if cj.Enabled && cj.NextRunAt != nil && !cj.NextRunAt.After(now) {
			due = append(due, *cj)
		}
	}
	return due, nil
}

func (s *cronJobStore) RecordRun(_ context.Context, id, executionID uuid.UUID, nextRunAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cj, ok := s.cronjobs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	cj.LastRunAt = &now
	cj.NextRunAt = &nextRunAt
	cj.LastError = errMsg
	if executionID != uuid.Nil {
		cj.LastExecutionID = &executionID
	}
	return nil
}

// copyMap deep-copies a payload through JSON. Payloads are small and
// this keeps stored values immune to caller mutation.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

func copyExecution(ex *workflow.Execution) *workflow.Execution {
	cp := *ex
	if ex.Steps != nil {
		cp.Steps = append(cp.Steps[:0:0], ex.Steps...)
	}
	return &cp
}

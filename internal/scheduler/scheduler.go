// Package scheduler runs saved workflows on cron schedules. It polls
// the store for due jobs, executes them through the orchestrator, and
// records the outcome plus the next run time. Scheduling is
// single-process and best effort; a missed tick fires on the next poll.
//
// Core invariant: scheduled execution is not privileged execution. A
// job runs as the user who created it, with that user's credentials.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jkaninda/blimp/internal/workflow"
)

// CronJob schedules the recurring execution of a saved workflow.
type CronJob struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	WorkflowID      uuid.UUID  `json:"workflow_id"`
	CronExpression  string     `json:"cron_expression"` // Standard 5-field cron (minute hour dom month dow).
	Enabled         bool       `json:"enabled"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	LastExecutionID *uuid.UUID `json:"last_execution_id,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CronJobStore is the persistence interface for cron jobs.
type CronJobStore interface {
	Create(ctx context.Context, cj *CronJob) error
	Get(ctx context.Context, id uuid.UUID) (*CronJob, error)
	ListByUser(ctx context.Context, userID string) ([]CronJob, error)
	Update(ctx context.Context, cj *CronJob) error
	Delete(ctx context.Context, id uuid.UUID) error
	// GetDueJobs returns enabled jobs whose NextRunAt is at or before now.
	GetDueJobs(ctx context.Context, now time.Time) ([]CronJob, error)
	// RecordRun stores the outcome of one firing and advances NextRunAt.
	RecordRun(ctx context.Context, id, executionID uuid.UUID, nextRunAt time.Time, errMsg string) error
}

// WorkflowRunner executes a saved workflow. *orchestrator.Service satisfies it.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, userID string, workflowID uuid.UUID, overrides map[string]any) (*workflow.Execution, error)
}

// parser accepts the standard 5-field expression format.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRun computes the first firing time of expr strictly after now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(now), nil
}

// Scheduler polls for due jobs and fires them.
type Scheduler struct {
	store   CronJobStore
	runner  WorkflowRunner
	metrics *Metrics
	logger  *slog.Logger
	poll    time.Duration
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval overrides the default 30s poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.poll = d }
}

// WithClock overrides the scheduler time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. metrics may be nil.
func New(store CronJobStore, runner WorkflowRunner, metrics *Metrics, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		store:   store,
		runner:  runner,
		metrics: metrics,
		logger:  logger,
		poll:    30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the scheduler loop and returns a cancel function.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		s.logger.InfoContext(ctx, "cron scheduler started",
			slog.String("poll_interval", s.poll.String()))

		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("cron scheduler stopped")
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()

	return cancel
}

// Tick runs a single poll cycle: find due jobs, fire them, record results.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.now()
	now := start.UTC()

	due, err := s.store.GetDueJobs(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "polling due jobs failed",
			slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.InfoContext(ctx, "cron jobs due", slog.Int("count", len(due)))

	for i := range due {
		s.fireJob(ctx, &due[i], now)
	}
	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

// fireJob executes one job's workflow and records the outcome. The next
// run is advanced even when the run fails; a broken job must not fire
// again on every tick.
func (s *Scheduler) fireJob(ctx context.Context, job *CronJob, now time.Time) {
	s.logger.InfoContext(ctx, "firing cron job",
		slog.String("cronjob_id", job.ID.String()),
		slog.String("name", job.Name),
		slog.String("user_id", job.UserID))
	if s.metrics != nil {
		s.metrics.JobsFired.Inc()
	}

	next, nextErr := NextRun(job.CronExpression, now)
	if nextErr != nil {
		// Expressions are validated at creation; a record with a broken
		// one would otherwise stay due forever.
		next = now.Add(24 * time.Hour)
	}

	ex, err := s.runner.ExecuteWorkflow(ctx, job.UserID, job.WorkflowID, nil)
	var errMsg string
	var executionID uuid.UUID
	if err != nil {
		errMsg = err.Error()
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		s.logger.ErrorContext(ctx, "cron job execution failed",
			slog.String("cronjob_id", job.ID.String()),
			slog.String("error", errMsg))
	} else {
		executionID = ex.ID
	}

	if recordErr := s.store.RecordRun(ctx, job.ID, executionID, next, errMsg); recordErr != nil {
		s.logger.ErrorContext(ctx, "failed to record cron run",
			slog.String("cronjob_id", job.ID.String()),
			slog.String("error", recordErr.Error()))
	}
}

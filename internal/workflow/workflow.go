// Package workflow defines the persisted entities of the orchestrator:
// analyzed workflows and their executions.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/plan"
)

// Workflow is an analyzed prompt saved for execution. The plan inside
// is already normalized.
type Workflow struct {
	ID        uuid.UUID  `json:"id"`
	UserID    string     `json:"user_id"`
	Prompt    string     `json:"prompt"`
	Plan      *plan.Plan `json:"plan"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Execution records one run of a workflow.
type Execution struct {
	ID         uuid.UUID           `json:"id"`
	WorkflowID uuid.UUID           `json:"workflow_id,omitempty"` // uuid.Nil for ad hoc runs
	UserID     string              `json:"user_id"`
	Status     string              `json:"status"` // success, partial_success, error, running
	Message    string              `json:"message,omitempty"`
	Steps      []engine.StepResult `json:"steps"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// StatusRunning marks an execution that has started but not finished.
// Terminal statuses come from the engine.
const StatusRunning = "running"

// Store persists analyzed workflows.
type Store interface {
	Create(ctx context.Context, wf *Workflow) error
	Get(ctx context.Context, id uuid.UUID) (*Workflow, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Workflow, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	Create(ctx context.Context, ex *Execution) error
	Update(ctx context.Context, ex *Execution) error
	Get(ctx context.Context, id uuid.UUID) (*Execution, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Execution, error)
}

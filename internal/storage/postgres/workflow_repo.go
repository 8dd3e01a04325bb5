package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/blimp/internal/workflow"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// WorkflowRepo implements workflow.Store on GORM.
type WorkflowRepo struct {
	db *gorm.DB
}

// NewWorkflowRepo creates a workflow repository.
func NewWorkflowRepo(db *gorm.DB) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

func (r *WorkflowRepo) Create(ctx context.Context, wf *workflow.Workflow) error {
	m, err := toWorkflowModel(wf)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("creating workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) Get(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	var m WorkflowModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", id, err)
	}
	return toWorkflowDomain(&m)
}

func (r *WorkflowRepo) ListByUser(ctx context.Context, userID string, limit int) ([]workflow.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []WorkflowModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing workflows for %s: %w", userID, err)
	}

	out := make([]workflow.Workflow, 0, len(models))
	for i := range models {
		wf, err := toWorkflowDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&WorkflowModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting workflow %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

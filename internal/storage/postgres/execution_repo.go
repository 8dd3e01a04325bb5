package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/blimp/internal/workflow"
)

// ExecutionRepo implements workflow.ExecutionStore on GORM.
type ExecutionRepo struct {
	db *gorm.DB
}

// NewExecutionRepo creates an execution repository.
func NewExecutionRepo(db *gorm.DB) *ExecutionRepo {
	return &ExecutionRepo{db: db}
}

func (r *ExecutionRepo) Create(ctx context.Context, ex *workflow.Execution) error {
	m, err := toExecutionModel(ex)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("creating execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Update(ctx context.Context, ex *workflow.Execution) error {
	m, err := toExecutionModel(ex)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&ExecutionModel{}).
		Where("id = ?", ex.ID).
		Updates(map[string]any{
			"status":      m.Status,
			"message":     m.Message,
			"steps":       m.Steps,
			"finished_at": m.FinishedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating execution %s: %w", ex.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ExecutionRepo) Get(ctx context.Context, id uuid.UUID) (*workflow.Execution, error) {
	var m ExecutionModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading execution %s: %w", id, err)
	}
	return toExecutionDomain(&m)
}

func (r *ExecutionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]workflow.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []ExecutionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing executions for %s: %w", userID, err)
	}

	out := make([]workflow.Execution, 0, len(models))
	for i := range models {
		ex, err := toExecutionDomain(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *ex)
	}
	return out, nil
}

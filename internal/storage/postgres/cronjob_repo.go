package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/blimp/internal/scheduler"
)

// CronJobRepo implements scheduler.CronJobStore on GORM.
type CronJobRepo struct {
	db *gorm.DB
}

// NewCronJobRepo creates a cron job repository.
func NewCronJobRepo(db *gorm.DB) *CronJobRepo {
	return &CronJobRepo{db: db}
}

func (r *CronJobRepo) Create(ctx context.Context, cj *scheduler.CronJob) error {
	if err := r.db.WithContext(ctx).Create(toCronJobModel(cj)).Error; err != nil {
		return fmt.Errorf("creating cron job: %w", err)
	}
	return nil
}

func (r *CronJobRepo) Get(ctx context.Context, id uuid.UUID) (*scheduler.CronJob, error) {
	var m CronJobModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading cron job %s: %w", id, err)
	}
	return toCronJobDomain(&m), nil
}

func (r *CronJobRepo) ListByUser(ctx context.Context, userID string) ([]scheduler.CronJob, error) {
	var models []CronJobModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing cron jobs for %s: %w", userID, err)
	}

	out := make([]scheduler.CronJob, 0, len(models))
	for i := range models {
		out = append(out, *toCronJobDomain(&models[i]))
	}
	return out, nil
}

func (r *CronJobRepo) Update(ctx context.Context, cj *scheduler.CronJob) error {
	res := r.db.WithContext(ctx).
		Model(&CronJobModel{}).
		Where("id = ?", cj.ID).
		Updates(map[string]any{
			"name":            cj.Name,
			"cron_expression": cj.CronExpression,
			"enabled":         cj.Enabled,
			"next_run_at":     cj.NextRunAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating cron job %s: %w", cj.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CronJobRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&CronJobModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting cron job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CronJobRepo) GetDueJobs(ctx context.Context, now time.Time) ([]scheduler.CronJob, error) {
	var models []CronJobModel
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying due cron jobs: %w", err)
	}

	out := make([]scheduler.CronJob, 0, len(models))
	for i := range models {
		out = append(out, *toCronJobDomain(&models[i]))
	}
	return out, nil
}

func (r *CronJobRepo) RecordRun(ctx context.Context, id, executionID uuid.UUID, nextRunAt time.Time, errMsg string) error {
	updates := map[string]any{
		"last_run_at": time.Now().UTC(),
		"next_run_at": nextRunAt,
		"last_error":  errMsg,
	}
	if executionID != uuid.Nil {
		updates["last_execution_id"] = executionID
	}

	res := r.db.WithContext(ctx).
		Model(&CronJobModel{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("recording cron run for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

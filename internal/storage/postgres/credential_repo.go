package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/blimp/internal/credentials"
)

// CredentialRepo implements credentials.Store on GORM.
type CredentialRepo struct {
	db *gorm.DB
}

// NewCredentialRepo creates a credential repository.
func NewCredentialRepo(db *gorm.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) Get(ctx context.Context, userID, app string) (*credentials.Record, error) {
	var m CredentialModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND app = ?", userID, app).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, credentials.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential for %s/%s: %w", userID, app, err)
	}

	var raw map[string]any
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &raw); err != nil {
			return nil, fmt.Errorf("decoding credential payload for %s/%s: %w", userID, app, err)
		}
	}
	return credentials.Normalize(raw), nil
}

func (r *CredentialRepo) Put(ctx context.Context, userID, app string, rec *credentials.Record) error {
	payload, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("encoding credential payload: %w", err)
	}

	m := &CredentialModel{
		ID:      uuid.New(),
		UserID:  userID,
		App:     app,
		Payload: JSONB(payload),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "app"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("storing credential for %s/%s: %w", userID, app, err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, userID, app string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND app = ?", userID, app).
		Delete(&CredentialModel{})
	if res.Error != nil {
		return fmt.Errorf("deleting credential for %s/%s: %w", userID, app, res.Error)
	}
	if res.RowsAffected == 0 {
		return credentials.ErrNotFound
	}
	return nil
}

func (r *CredentialRepo) ConnectedApps(ctx context.Context, userID string) ([]string, error) {
	var apps []string
	err := r.db.WithContext(ctx).
		Model(&CredentialModel{}).
		Where("user_id = ?", userID).
		Order("app").
		Pluck("app", &apps).Error
	if err != nil {
		return nil, fmt.Errorf("listing connected apps for %s: %w", userID, err)
	}
	return apps, nil
}

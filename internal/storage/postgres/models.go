package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a json.RawMessage that implements the driver.Valuer and
// sql.Scanner interfaces for GORM JSONB columns. On SQLite the same
// columns are stored as TEXT.
type JSONB json.RawMessage

// Value implements driver.Valuer.
func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = JSONB(append([]byte(nil), v...))
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return nil
}

// CredentialModel maps to the "app_credentials" table. The full OAuth
// payload is kept as JSON so provider-specific fields survive rewrites.
type CredentialModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;uniqueIndex:idx_user_app"`
	App       string    `gorm:"not null;uniqueIndex:idx_user_app"`
	Payload   JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CredentialModel) TableName() string { return "app_credentials" }

// WorkflowModel maps to the "workflows" table.
type WorkflowModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Prompt    string    `gorm:"not null"`
	Plan      JSONB     `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (WorkflowModel) TableName() string { return "workflows" }

// ExecutionModel maps to the "executions" table.
// No UpdatedAt or DeletedAt beyond FinishedAt — execution history is
// append-only.
type ExecutionModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	WorkflowID uuid.UUID `gorm:"type:uuid;index"` // uuid.Nil for ad hoc runs
	UserID     string    `gorm:"not null;index"`
	Status     string    `gorm:"not null"`
	Message    string
	Steps      JSONB `gorm:"type:jsonb;not null;default:'[]'"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

func (ExecutionModel) TableName() string { return "executions" }

// CronJobModel maps to the "cron_jobs" table.
type CronJobModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID          string     `gorm:"not null;index"`
	Name            string     `gorm:"not null"`
	WorkflowID      uuid.UUID  `gorm:"type:uuid;not null"`
	CronExpression  string     `gorm:"not null"`
	Enabled         bool       `gorm:"not null;default:true"`
	NextRunAt       *time.Time `gorm:"index"`
	LastRunAt       *time.Time
	LastExecutionID *uuid.UUID `gorm:"type:uuid"`
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (CronJobModel) TableName() string { return "cron_jobs" }

package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

// Store bundles the PostgreSQL repositories behind storage.Store.
type Store struct {
	db         *gorm.DB
	creds      *CredentialRepo
	workflows  *WorkflowRepo
	executions *ExecutionRepo
	cronjobs   *CronJobRepo
}

// NewStore opens a PostgreSQL connection and wires the repositories.
func NewStore(cfg Config) (*Store, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewStoreWithDB(db), nil
}

// NewStoreWithDB wires the repositories over an existing connection.
// The SQLite backend uses this with its own dialector.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{
		db:         db,
		creds:      NewCredentialRepo(db),
		workflows:  NewWorkflowRepo(db),
		executions: NewExecutionRepo(db),
		cronjobs:   NewCronJobRepo(db),
	}
}

func (s *Store) Credentials() credentials.Store      { return s.creds }
func (s *Store) Workflows() workflow.Store           { return s.workflows }
func (s *Store) Executions() workflow.ExecutionStore { return s.executions }
func (s *Store) CronJobs() scheduler.CronJobStore    { return s.cronjobs }

func (s *Store) Migrate(ctx context.Context) error { return Migrate(ctx, s.db) }
func (s *Store) Ping(ctx context.Context) error    { return Ping(ctx, s.db) }
func (s *Store) Close() error                      { return Close(s.db) }
func (s *Store) Driver() string                    { return "postgres" }

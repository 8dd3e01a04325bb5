// Package sqlite implements the storage.Store interface on SQLite via
// the pure-Go glebarez driver. It is the zero-config default backend
// and reuses the GORM models and repositories from the postgres package.
package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/scheduler"
	pgstore "github.com/jkaninda/blimp/internal/storage/postgres"
	"github.com/jkaninda/blimp/internal/workflow"
)

// Config holds SQLite settings.
type Config struct {
	Path        string
	JournalMode string
	Logger      *slog.Logger
}

func (c Config) path() string {
	if c.Path != "" {
		return c.Path
	}
	return "blimp.db"
}

func (c Config) journalMode() string {
	if c.JournalMode != "" {
		return c.JournalMode
	}
	return "wal"
}

func (c Config) logHandler() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Store is the SQLite-backed storage.Store.
type Store struct {
	inner *pgstore.Store
}

// NewStore opens (creating if needed) the SQLite database file.
func NewStore(cfg Config) (*Store, error) {
	path := cfg.path()
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(%s)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		path, cfg.journalMode())

	gormLogger := logger.New(slogPrinter{logger: cfg.logHandler()}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent writes.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Store{inner: pgstore.NewStoreWithDB(db)}, nil
}

func (s *Store) Credentials() credentials.Store      { return s.inner.Credentials() }
func (s *Store) Workflows() workflow.Store           { return s.inner.Workflows() }
func (s *Store) Executions() workflow.ExecutionStore { return s.inner.Executions() }
func (s *Store) CronJobs() scheduler.CronJobStore    { return s.inner.CronJobs() }

func (s *Store) Migrate(ctx context.Context) error { return s.inner.Migrate(ctx) }
func (s *Store) Ping(ctx context.Context) error    { return s.inner.Ping(ctx) }
func (s *Store) Close() error                      { return s.inner.Close() }
func (s *Store) Driver() string                    { return "sqlite" }

type slogPrinter struct {
	logger *slog.Logger
}

func (p slogPrinter) Printf(format string, args ...any) {
	p.logger.Info(fmt.Sprintf(format, args...))
}

// Package storage defines the unified Store interface that abstracts all persistence operations.
// Three backends are provided: SQLite (default, zero-config), PostgreSQL
// (production/multi-tenant), and an in-memory store for tests and the
// stdio MCP mode.
package storage

import (
	"context"

	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/scheduler"
	"github.com/jkaninda/blimp/internal/workflow"
)

// Store is the unified persistence interface.
// It provides access to all domain-specific sub-stores through accessor methods.
type Store interface {
	// Sub-store accessors. The returned stores share the same underlying
	// connection.
	Credentials() credentials.Store
	Workflows() workflow.Store
	Executions() workflow.ExecutionStore
	CronJobs() scheduler.CronJobStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name.
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver"` // "sqlite" (default), "postgres", or "memory"
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`   // Database file path. Default: blimp.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`       // "wal" (default), "delete", "truncate", etc.
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"`
}

// Driver names.
const (
	DefaultDriver  = "sqlite"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

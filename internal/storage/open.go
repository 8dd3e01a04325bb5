package storage

import (
	"fmt"
	"log/slog"

	"github.com/jkaninda/blimp/internal/storage/memory"
	"github.com/jkaninda/blimp/internal/storage/postgres"
	"github.com/jkaninda/blimp/internal/storage/sqlite"
)

// Open creates a Store for the configured driver. An empty driver
// selects SQLite.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return sqlite.NewStore(sqlite.Config{
			Path:        cfg.SQLite.Path,
			JournalMode: cfg.SQLite.JournalMode,
			Logger:      logger,
		})
	case DriverPostgres:
		return postgres.NewStore(postgres.Config{
			DSN:              cfg.Postgres.DSN,
			MaxOpenConns:     cfg.Postgres.MaxOpenConns,
			MaxIdleConns:     cfg.Postgres.MaxIdleConns,
			ConnMaxLifetimeS: cfg.Postgres.ConnMaxLifetimeS,
			Logger:           logger,
		})
	case DriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Package database opens the repository backend selected by configuration.
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/repository"
	"github.com/prn-tf/hermes/internal/repository/postgres"
	"github.com/prn-tf/hermes/internal/repository/sqlite"
)

// Open connects to the configured driver. When cfg.AutoMigrate is set,
// pending migrations are applied before the repositories are returned.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	var (
		result *repository.CreateRepositoriesResult
		err    error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		result, err = sqlite.Create(ctx, cfg, logger)
	case config.DriverPostgres:
		result, err = postgres.Create(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := result.Database.Migrate(ctx); err != nil {
			_ = result.Database.Close()
			return nil, err
		}
	}

	return result, nil
}

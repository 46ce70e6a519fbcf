package sqlite

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/repository"
)

// Create opens the SQLite database described by cfg and builds every repository on it.
func Create(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	sqliteCfg := DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		sqliteCfg.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		sqliteCfg.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		sqliteCfg.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		sqliteCfg.SynchronousMode = cfg.SynchronousMode
	}

	db, err := NewDB(ctx, sqliteCfg, logger.With().Str("component", "sqlite").Logger())
	if err != nil {
		return nil, err
	}

	return &repository.CreateRepositoriesResult{
		Repos:    NewRepositories(db),
		Database: db,
	}, nil
}

// NewRepositories builds every repository on db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		User:         NewUserRepository(db),
		Relationship: NewRelationshipRepository(db),
		Micropost:    NewMicropostRepository(db),
		Tx:           db,
	}
}

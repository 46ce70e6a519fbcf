package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/repository"
)

// Create connects to PostgreSQL and builds every repository on the pool.
func Create(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	db, err := NewDB(ctx, cfg, logger.With().Str("component", "postgres").Logger())
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

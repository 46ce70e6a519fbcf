package repository

import (
	"context"
)

// Repositories holds all repository instances plus the transaction manager
// they share.
type Repositories struct {
	User         UserRepository
	Relationship RelationshipRepository
	Micropost    MicropostRepository
	Tx           TxManager
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.DatabaseChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Database is a connected store: health checks plus migrations.
type Database interface {
	DatabaseHealth
	Migrator
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database Database
}

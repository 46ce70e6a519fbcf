// Package repository defines data access interfaces for Hermes.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, in-memory for testing) while keeping the service layer clean.
//
// Every method runs inside the transaction carried by ctx when one was started
// through TxManager, and directly against the database otherwise.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/hermes/internal/domain"
)

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create inserts a new user and sets its ID.
	// A duplicate email is reported as domain.EmailTakenError.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by email, ignoring case.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Update updates name, email, admin flag and credential of an existing user.
	// A duplicate email is reported as domain.EmailTakenError.
	Update(ctx context.Context, user *domain.User) error

	// UpdateCredential replaces only the stored password material.
	UpdateCredential(ctx context.Context, id int64, credential domain.Credential) error

	// Delete deletes a user row by ID.
	Delete(ctx context.Context, id int64) error

	// List returns users ordered by ID with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByEmail checks if a user other than excludeID holds the email, ignoring case.
	// Pass 0 to check against every user.
	ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error)
}

// =============================================================================
// Relationship Repository
// =============================================================================

// RelationshipRepository defines the interface for follow-edge data access.
type RelationshipRepository interface {
	// Create inserts a new edge and sets its ID.
	// Returns domain.ErrAlreadyFollowing if the edge exists and
	// domain.ErrUserNotFound if either endpoint is missing.
	Create(ctx context.Context, rel *domain.Relationship) error

	// Delete removes the edge follower -> followed.
	// Returns domain.ErrRelationshipNotFound if there was none.
	Delete(ctx context.Context, followerID, followedID int64) error

	// Exists reports whether follower follows followed.
	Exists(ctx context.Context, followerID, followedID int64) (bool, error)

	// ListFollowing returns the users followed by userID ordered by name.
	ListFollowing(ctx context.Context, userID int64) ([]*domain.User, error)

	// ListFollowers returns the users following userID ordered by name.
	ListFollowers(ctx context.Context, userID int64) ([]*domain.User, error)

	// CountFollowing returns how many users userID follows.
	CountFollowing(ctx context.Context, userID int64) (int64, error)

	// CountFollowers returns how many users follow userID.
	CountFollowers(ctx context.Context, userID int64) (int64, error)

	// DeleteByUser removes every edge where userID is follower or followed.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// =============================================================================
// Micropost Repository
// =============================================================================

// MicropostRepository defines the interface for micropost data access.
type MicropostRepository interface {
	// Create inserts a new post and sets its ID.
	// Returns domain.ErrUserNotFound if the author is missing.
	Create(ctx context.Context, post *domain.Micropost) error

	// GetByID retrieves a post by ID.
	GetByID(ctx context.Context, id int64) (*domain.Micropost, error)

	// Delete deletes a post by ID.
	Delete(ctx context.Context, id int64) error

	// ListByUser returns posts authored by userID, newest first.
	ListByUser(ctx context.Context, userID int64, opts FeedOptions) ([]*domain.Micropost, error)

	// Feed returns posts authored by userID or by anyone userID follows, newest first.
	Feed(ctx context.Context, userID int64, opts FeedOptions) ([]*domain.Micropost, error)

	// DeleteByUser removes every post authored by userID.
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// FeedOptions selects one page of a newest-first post stream.
type FeedOptions struct {
	// Before restricts the page to posts strictly older than this position.
	Before *domain.FeedCursor

	// Limit is the maximum number of posts to return.
	Limit int
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}

// =============================================================================
// Transaction Support
// =============================================================================

// TxManager defines the interface for transaction management.
type TxManager interface {
	// WithTx executes the given function within a transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	// Nested calls reuse the transaction already carried by ctx.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// WithTxOptions executes the given function within a transaction with options.
	WithTxOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error
}

// TxOptions contains transaction options.
type TxOptions struct {
	// ReadOnly specifies if the transaction is read-only.
	ReadOnly bool
}

// =============================================================================
// Migrations
// =============================================================================

// Migrator applies and inspects schema migrations.
type Migrator interface {
	// Migrate applies every pending migration.
	Migrate(ctx context.Context) error

	// Rollback reverts the most recently applied migration.
	Rollback(ctx context.Context) error

	// MigrationStatus lists every known migration and whether it is applied.
	MigrationStatus(ctx context.Context) ([]MigrationState, error)
}

// MigrationState describes one migration file.
type MigrationState struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

// relationshipRepository implements repository.RelationshipRepository for SQLite.
type relationshipRepository struct {
	db *DB
}

// NewRelationshipRepository creates a new SQLite relationship repository.
func NewRelationshipRepository(db *DB) repository.RelationshipRepository {
	return &relationshipRepository{db: db}
}

// Create inserts a follow edge.
func (r *relationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	query := `INSERT INTO relationships (follower_id, followed_id, created_at) VALUES (?, ?, ?)`

	result, err := r.db.q(ctx).ExecContext(ctx, query, rel.FollowerID, rel.FollowedID, formatTime(rel.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyFollowing
		}
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	rel.ID = id

	return nil
}

// Delete removes the edge follower -> followed.
func (r *relationshipRepository) Delete(ctx context.Context, followerID, followedID int64) error {
	query := `DELETE FROM relationships WHERE follower_id = ? AND followed_id = ?`

	result, err := r.db.q(ctx).ExecContext(ctx, query, followerID, followedID)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}

	return requireAffected(result, domain.ErrRelationshipNotFound)
}

// Exists reports whether follower follows followed.
func (r *relationshipRepository) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM relationships WHERE follower_id = ? AND followed_id = ?)`

	var exists bool
	if err := r.db.q(ctx).GetContext(ctx, &exists, query, followerID, followedID); err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}

	return exists, nil
}

// ListFollowing returns the users followed by userID.
func (r *relationshipRepository) ListFollowing(ctx context.Context, userID int64) ([]*domain.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.is_admin, u.salt, u.encrypted_password, u.password_digest, u.created_at, u.updated_at
		FROM users u
		JOIN relationships rel ON rel.followed_id = u.id
		WHERE rel.follower_id = ?
		ORDER BY u.name, u.id
	`
	return r.listUsers(ctx, query, userID)
}

// ListFollowers returns the users following userID.
func (r *relationshipRepository) ListFollowers(ctx context.Context, userID int64) ([]*domain.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.is_admin, u.salt, u.encrypted_password, u.password_digest, u.created_at, u.updated_at
		FROM users u
		JOIN relationships rel ON rel.follower_id = u.id
		WHERE rel.followed_id = ?
		ORDER BY u.name, u.id
	`
	return r.listUsers(ctx, query, userID)
}

func (r *relationshipRepository) listUsers(ctx context.Context, query string, userID int64) ([]*domain.User, error) {
	var rows []userRow
	if err := r.db.q(ctx).SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list related users: %w", err)
	}
	return usersFromRows(rows)
}

// CountFollowing returns how many users userID follows.
func (r *relationshipRepository) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM relationships WHERE follower_id = ?`, userID)
}

// CountFollowers returns how many users follow userID.
func (r *relationshipRepository) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM relationships WHERE followed_id = ?`, userID)
}

func (r *relationshipRepository) count(ctx context.Context, query string, userID int64) (int64, error) {
	var n int64
	if err := r.db.q(ctx).GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return n, nil
}

// DeleteByUser removes every edge touching userID.
func (r *relationshipRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	query := `DELETE FROM relationships WHERE follower_id = ? OR followed_id = ?`

	result, err := r.db.q(ctx).ExecContext(ctx, query, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relationships: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Ensure relationshipRepository implements repository.RelationshipRepository.
var _ repository.RelationshipRepository = (*relationshipRepository)(nil)

package postgres

import (
	"context"
	"fmt"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

// relationshipRepository implements repository.RelationshipRepository.
type relationshipRepository struct {
	db *DB
}

// NewRelationshipRepository creates a new PostgreSQL relationship repository.
func NewRelationshipRepository(db *DB) repository.RelationshipRepository {
	return &relationshipRepository{db: db}
}

// Create inserts a follow edge.
func (r *relationshipRepository) Create(ctx context.Context, rel *domain.Relationship) error {
	query := `
		INSERT INTO relationships (follower_id, followed_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := r.db.q(ctx).QueryRow(ctx, query, rel.FollowerID, rel.FollowedID, rel.CreatedAt).Scan(&rel.ID)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrAlreadyFollowing
		case isForeignKeyViolation(err):
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create relationship: %w", err)
	}
	return nil
}

// Delete removes the edge follower -> followed.
func (r *relationshipRepository) Delete(ctx context.Context, followerID, followedID int64) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`DELETE FROM relationships WHERE follower_id = $1 AND followed_id = $2`,
		followerID, followedID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	return requireAffected(tag, domain.ErrRelationshipNotFound)
}

// Exists reports whether follower follows followed.
func (r *relationshipRepository) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM relationships WHERE follower_id = $1 AND followed_id = $2)`

	var exists bool
	if err := r.db.q(ctx).QueryRow(ctx, query, followerID, followedID).Scan(&exists); err != nil {
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
		WHERE rel.follower_id = $1
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
		WHERE rel.followed_id = $1
		ORDER BY u.name, u.id
	`
	return r.listUsers(ctx, query, userID)
}

func (r *relationshipRepository) listUsers(ctx context.Context, query string, userID int64) ([]*domain.User, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list related users: %w", err)
	}
	return collectUsers(rows)
}

// CountFollowing returns how many users userID follows.
func (r *relationshipRepository) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM relationships WHERE follower_id = $1`, userID)
}

// CountFollowers returns how many users follow userID.
func (r *relationshipRepository) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM relationships WHERE followed_id = $1`, userID)
}

func (r *relationshipRepository) count(ctx context.Context, query string, userID int64) (int64, error) {
	var n int64
	if err := r.db.q(ctx).QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count relationships: %w", err)
	}
	return n, nil
}

// DeleteByUser removes every edge touching userID.
func (r *relationshipRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM relationships WHERE follower_id = $1 OR followed_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete relationships: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure relationshipRepository implements repository.RelationshipRepository.
var _ repository.RelationshipRepository = (*relationshipRepository)(nil)

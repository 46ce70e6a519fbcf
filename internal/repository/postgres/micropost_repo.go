package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

// micropostRepository implements repository.MicropostRepository.
type micropostRepository struct {
	db *DB
}

// NewMicropostRepository creates a new PostgreSQL micropost repository.
func NewMicropostRepository(db *DB) repository.MicropostRepository {
	return &micropostRepository{db: db}
}

// Create inserts a new post.
func (r *micropostRepository) Create(ctx context.Context, post *domain.Micropost) error {
	query := `INSERT INTO microposts (user_id, content, created_at) VALUES ($1, $2, $3) RETURNING id`

	err := r.db.q(ctx).QueryRow(ctx, query, post.UserID, post.Content, post.CreatedAt).Scan(&post.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create micropost: %w", err)
	}
	return nil
}

// GetByID retrieves a post by ID.
func (r *micropostRepository) GetByID(ctx context.Context, id int64) (*domain.Micropost, error) {
	p := &domain.Micropost{}
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, user_id, content, created_at FROM microposts WHERE id = $1`, id,
	).Scan(&p.ID, &p.UserID, &p.Content, &p.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMicropostNotFound
		}
		return nil, fmt.Errorf("failed to get micropost: %w", err)
	}
	return p, nil
}

// Delete deletes a post by ID.
func (r *micropostRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM microposts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete micropost: %w", err)
	}
	return requireAffected(tag, domain.ErrMicropostNotFound)
}

// ListByUser returns posts authored by userID, newest first.
func (r *micropostRepository) ListByUser(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	return r.page(ctx, `user_id = $1`, []any{userID}, opts)
}

// Feed returns posts authored by userID or anyone userID follows, newest first.
func (r *micropostRepository) Feed(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	where := `(user_id = $1 OR user_id IN (SELECT followed_id FROM relationships WHERE follower_id = $1))`
	return r.page(ctx, where, []any{userID}, opts)
}

// page runs one keyset-paginated, newest-first query. where uses $1 only.
func (r *micropostRepository) page(ctx context.Context, where string, args []any, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, user_id, content, created_at FROM microposts WHERE `)
	b.WriteString(where)

	if opts.Before != nil {
		args = append(args, opts.Before.CreatedAt, opts.Before.ID)
		fmt.Fprintf(&b, ` AND (created_at, id) < ($%d, $%d)`, len(args)-1, len(args))
	}

	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, ` LIMIT $%d`, len(args))
	}

	rows, err := r.db.q(ctx).Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list microposts: %w", err)
	}
	defer rows.Close()

	var posts []*domain.Micropost
	for rows.Next() {
		p := &domain.Micropost{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan micropost: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating microposts: %w", err)
	}
	return posts, nil
}

// DeleteByUser removes every post authored by userID.
func (r *micropostRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM microposts WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete microposts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ensure micropostRepository implements repository.MicropostRepository.
var _ repository.MicropostRepository = (*micropostRepository)(nil)

package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

// micropostRow mirrors the microposts table.
type micropostRow struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

func (row *micropostRow) toDomain() (*domain.Micropost, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &domain.Micropost{
		ID:        row.ID,
		UserID:    row.UserID,
		Content:   row.Content,
		CreatedAt: createdAt,
	}, nil
}

// micropostRepository implements repository.MicropostRepository for SQLite.
type micropostRepository struct {
	db *DB
}

// NewMicropostRepository creates a new SQLite micropost repository.
func NewMicropostRepository(db *DB) repository.MicropostRepository {
	return &micropostRepository{db: db}
}

// Create inserts a new post.
func (r *micropostRepository) Create(ctx context.Context, post *domain.Micropost) error {
	query := `INSERT INTO microposts (user_id, content, created_at) VALUES (?, ?, ?)`

	result, err := r.db.q(ctx).ExecContext(ctx, query, post.UserID, post.Content, formatTime(post.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to create micropost: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	post.ID = id

	return nil
}

// GetByID retrieves a post by ID.
func (r *micropostRepository) GetByID(ctx context.Context, id int64) (*domain.Micropost, error) {
	var row micropostRow
	err := r.db.q(ctx).GetContext(ctx, &row, `SELECT id, user_id, content, created_at FROM microposts WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMicropostNotFound
		}
		return nil, fmt.Errorf("failed to get micropost: %w", err)
	}
	return row.toDomain()
}

// Delete deletes a post by ID.
func (r *micropostRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM microposts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete micropost: %w", err)
	}
	return requireAffected(result, domain.ErrMicropostNotFound)
}

// ListByUser returns posts authored by userID, newest first.
func (r *micropostRepository) ListByUser(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	return r.page(ctx, `user_id = ?`, []interface{}{userID}, opts)
}

// Feed returns posts authored by userID or anyone userID follows, newest first.
func (r *micropostRepository) Feed(ctx context.Context, userID int64, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	where := `(user_id = ? OR user_id IN (SELECT followed_id FROM relationships WHERE follower_id = ?))`
	return r.page(ctx, where, []interface{}{userID, userID}, opts)
}

// page runs one keyset-paginated, newest-first query filtered by where.
func (r *micropostRepository) page(ctx context.Context, where string, args []interface{}, opts repository.FeedOptions) ([]*domain.Micropost, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, user_id, content, created_at FROM microposts WHERE `)
	b.WriteString(where)

	if opts.Before != nil {
		at := formatTime(opts.Before.CreatedAt)
		b.WriteString(` AND (created_at < ? OR (created_at = ? AND id < ?))`)
		args = append(args, at, at, opts.Before.ID)
	}

	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if opts.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	}

	var rows []micropostRow
	if err := r.db.q(ctx).SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to list microposts: %w", err)
	}

	posts := make([]*domain.Micropost, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// DeleteByUser removes every post authored by userID.
func (r *micropostRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM microposts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete microposts: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Ensure micropostRepository implements repository.MicropostRepository.
var _ repository.MicropostRepository = (*micropostRepository)(nil)

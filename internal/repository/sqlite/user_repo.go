package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

const userColumns = `id, name, email, is_admin, salt, encrypted_password, password_digest, created_at, updated_at`

// userRow mirrors the users table.
type userRow struct {
	ID                int64          `db:"id"`
	Name              string         `db:"name"`
	Email             string         `db:"email"`
	IsAdmin           bool           `db:"is_admin"`
	Salt              sql.NullString `db:"salt"`
	EncryptedPassword sql.NullString `db:"encrypted_password"`
	PasswordDigest    sql.NullString `db:"password_digest"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
}

func (row *userRow) toDomain() (*domain.User, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return &domain.User{
		ID:         row.ID,
		Name:       row.Name,
		Email:      row.Email,
		IsAdmin:    row.IsAdmin,
		Credential: toCredential(row.Salt, row.EncryptedPassword, row.PasswordDigest),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func usersFromRows(rows []userRow) ([]*domain.User, error) {
	users := make([]*domain.User, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// toCredential picks the generation a row holds; password_digest wins.
func toCredential(salt, encrypted, digest sql.NullString) domain.Credential {
	if digest.Valid {
		return domain.Credential{Scheme: domain.SchemeAdaptive, Hash: digest.String}
	}
	if salt.Valid && encrypted.Valid {
		return domain.Credential{Scheme: domain.SchemeLegacySalted, Salt: salt.String, Digest: encrypted.String}
	}
	return domain.Credential{}
}

// credentialColumns returns salt, encrypted_password and password_digest for c.
func credentialColumns(c domain.Credential) (salt, encrypted, digest sql.NullString) {
	switch c.Scheme {
	case domain.SchemeLegacySalted:
		return sql.NullString{String: c.Salt, Valid: true}, sql.NullString{String: c.Digest, Valid: true}, sql.NullString{}
	case domain.SchemeAdaptive:
		return sql.NullString{}, sql.NullString{}, sql.NullString{String: c.Hash, Valid: true}
	default:
		return sql.NullString{}, sql.NullString{}, sql.NullString{}
	}
}

// userRepository implements repository.UserRepository for SQLite.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (name, email, is_admin, salt, encrypted_password, password_digest, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	salt, encrypted, digest := credentialColumns(user.Credential)
	result, err := r.db.q(ctx).ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.IsAdmin,
		salt,
		encrypted,
		digest,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.EmailTakenError()
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	var row userRow
	if err := r.db.q(ctx).GetContext(ctx, &row, query, id); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return row.toDomain()
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower(?)`

	var row userRow
	if err := r.db.q(ctx).GetContext(ctx, &row, query, email); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return row.toDomain()
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = ?, email = ?, is_admin = ?, salt = ?, encrypted_password = ?, password_digest = ?, updated_at = ?
		WHERE id = ?
	`

	salt, encrypted, digest := credentialColumns(user.Credential)
	result, err := r.db.q(ctx).ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.IsAdmin,
		salt,
		encrypted,
		digest,
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.EmailTakenError()
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return requireAffected(result, domain.ErrUserNotFound)
}

// UpdateCredential replaces only the stored password material.
func (r *userRepository) UpdateCredential(ctx context.Context, id int64, credential domain.Credential) error {
	query := `UPDATE users SET salt = ?, encrypted_password = ?, password_digest = ? WHERE id = ?`

	salt, encrypted, digest := credentialColumns(credential)
	result, err := r.db.q(ctx).ExecContext(ctx, query, salt, encrypted, digest, id)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	return requireAffected(result, domain.ErrUserNotFound)
}

// Delete deletes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.q(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireAffected(result, domain.ErrUserNotFound)
}

// List returns users ordered by ID with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	q := r.db.q(ctx)

	var total int64
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT ? OFFSET ?`

	var rows []userRow
	if err := q.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users, err := usersFromRows(rows)
	if err != nil {
		return nil, err
	}

	return &repository.ListResult[domain.User]{
		Items:  users,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// ExistsByEmail checks if a user other than excludeID holds the email.
func (r *userRepository) ExistsByEmail(ctx context.Context, email string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower(?) AND id != ?)`

	var exists bool
	if err := r.db.q(ctx).GetContext(ctx, &exists, query, email, excludeID); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}

	return exists, nil
}

// requireAffected returns notFound when result touched no rows.
func requireAffected(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)

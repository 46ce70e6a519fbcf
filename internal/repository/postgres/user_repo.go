package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/repository"
)

const userColumns = `id, name, email, is_admin, salt, encrypted_password, password_digest, created_at, updated_at`

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                         domain.User
		salt, encrypted, digested *string
	)
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.IsAdmin,
		&salt,
		&encrypted,
		&digested,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	switch {
	case digested != nil:
		u.Credential = domain.Credential{Scheme: domain.SchemeAdaptive, Hash: *digested}
	case salt != nil && encrypted != nil:
		u.Credential = domain.Credential{Scheme: domain.SchemeLegacySalted, Salt: *salt, Digest: *encrypted}
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*domain.User, error) {
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// credentialColumns returns salt, encrypted_password and password_digest for c.
func credentialColumns(c domain.Credential) (salt, encrypted, digest *string) {
	switch c.Scheme {
	case domain.SchemeLegacySalted:
		return &c.Salt, &c.Digest, nil
	case domain.SchemeAdaptive:
		return nil, nil, &c.Hash
	default:
		return nil, nil, nil
	}
}

// userRepository implements repository.UserRepository.
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(db *DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (name, email, is_admin, salt, encrypted_password, password_digest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	salt, encrypted, digest := credentialColumns(user.Credential)
	err := r.db.q(ctx).QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.IsAdmin,
		salt,
		encrypted,
		digest,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.EmailTakenError()
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	u, err := scanUser(r.db.q(ctx).QueryRow(ctx, query, email))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// Update updates an existing user.
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, is_admin = $3, salt = $4, encrypted_password = $5, password_digest = $6, updated_at = $7
		WHERE id = $8
	`

	salt, encrypted, digest := credentialColumns(user.Credential)
	tag, err := r.db.q(ctx).Exec(ctx, query,
		user.Name,
		user.Email,
		user.IsAdmin,
		salt,
		encrypted,
		digest,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.EmailTakenError()
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return requireAffected(tag, domain.ErrUserNotFound)
}

// UpdateCredential replaces only the stored password material.
func (r *userRepository) UpdateCredential(ctx context.Context, id int64, credential domain.Credential) error {
	query := `UPDATE users SET salt = $1, encrypted_password = $2, password_digest = $3 WHERE id = $4`

	salt, encrypted, digest := credentialColumns(credential)
	tag, err := r.db.q(ctx).Exec(ctx, query, salt, encrypted, digest, id)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	return requireAffected(tag, domain.ErrUserNotFound)
}

// Delete deletes a user by ID.
func (r *userRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return requireAffected(tag, domain.ErrUserNotFound)
}

// List returns users ordered by ID with pagination.
func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	q := r.db.q(ctx)

	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users, err := collectUsers(rows)
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
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2)`

	var exists bool
	if err := r.db.q(ctx).QueryRow(ctx, query, email, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email existence: %w", err)
	}
	return exists, nil
}

// Ensure userRepository implements repository.UserRepository.
var _ repository.UserRepository = (*userRepository)(nil)

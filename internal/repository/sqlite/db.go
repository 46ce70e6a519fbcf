// Package sqlite stores users, relationships and microposts in a single SQLite
// file through the cgo-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/prn-tf/hermes/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config tunes the modernc driver and the database/sql pool in front of it.
type Config struct {
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	JournalMode     string
	BusyTimeout     int // ms
	CacheSize       int // pages, or KiB when negative
	SynchronousMode string
}

// DefaultConfig pins the pool to one connection: SQLite allows a single writer
// and in-memory databases are per connection.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
		CacheSize:       -2000,
		SynchronousMode: "NORMAL",
	}
}

// DSN returns the modernc.org/sqlite connection string for the configuration.
// Foreign keys are always on and transactions take the write lock up front.
func (c Config) DSN() string {
	pragmas := []string{
		fmt.Sprintf("_pragma=journal_mode(%s)", c.JournalMode),
		fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout),
		fmt.Sprintf("_pragma=cache_size(%d)", c.CacheSize),
		fmt.Sprintf("_pragma=synchronous(%s)", c.SynchronousMode),
		"_pragma=foreign_keys(1)",
		"_txlock=immediate",
	}
	return "file:" + c.Path + "?" + strings.Join(pragmas, "&")
}

// txKey carries the active *sqlx.Tx in a context.
type txKey struct{}

// querier is the subset of *sqlx.DB and *sqlx.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// DB wraps a sqlx.DB connection for SQLite.
type DB struct {
	db     *sqlx.DB
	logger zerolog.Logger
	path   string
}

// NewDB opens the database file, creating its directory when needed, and
// checks that it can be reached.
func NewDB(ctx context.Context, cfg Config, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory %s: %w", dir, err)
		}
	}

	handle, err := sqlx.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	handle.SetMaxOpenConns(cfg.MaxOpenConns)
	handle.SetMaxIdleConns(cfg.MaxIdleConns)
	handle.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := handle.PingContext(ctx); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("reach sqlite %s: %w", cfg.Path, err)
	}

	logger.Info().
		Str("file", cfg.Path).
		Str("journal", cfg.JournalMode).
		Msg("sqlite ready")

	return &DB{db: handle, logger: logger, path: cfg.Path}, nil
}

func (db *DB) Close() error {
	db.logger.Info().Str("file", db.path).Msg("sqlite closed")
	return db.db.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Health runs a trivial query through the pool.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.db.GetContext(ctx, &one, `SELECT 1`); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}
	return nil
}

// q returns the transaction carried by ctx, or the database handle.
func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.db
}

func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTxOptions(ctx, repository.TxOptions{}, fn)
}

// WithTxOptions runs fn in one transaction, committed only when fn returns nil.
// A transaction already carried by ctx is joined. ReadOnly is ignored since
// _txlock=immediate makes every transaction take the write lock at BEGIN.
func (db *DB) WithTxOptions(ctx context.Context, _ repository.TxOptions, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}
	committed = true
	return nil
}

// provider builds a goose provider over the embedded migrations.
func (db *DB) provider() (*goose.Provider, error) {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db.db.DB, migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// Migrate applies every pending migration.
func (db *DB) Migrate(ctx context.Context) error {
	p, err := db.provider()
	if err != nil {
		return err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		db.logger.Info().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func (db *DB) Rollback(ctx context.Context) error {
	p, err := db.provider()
	if err != nil {
		return err
	}

	r, err := p.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	db.logger.Info().Int64("version", r.Source.Version).Msg("rolled back migration")
	return nil
}

// MigrationStatus lists every known migration and whether it is applied.
func (db *DB) MigrationStatus(ctx context.Context) ([]repository.MigrationState, error) {
	p, err := db.provider()
	if err != nil {
		return nil, err
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	states := make([]repository.MigrationState, 0, len(statuses))
	for _, s := range statuses {
		states = append(states, repository.MigrationState{
			Version:   s.Source.Version,
			Name:      filepath.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return states, nil
}

// Ensure DB implements the repository interfaces.
var (
	_ repository.TxManager = (*DB)(nil)
	_ repository.Migrator  = (*DB)(nil)
	_ repository.Database  = (*DB)(nil)
)

// Package postgres provides the PostgreSQL-backed repositories.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const connectTimeout = 10 * time.Second

// DB owns the pgx pool shared by every PostgreSQL repository.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// poolConfig maps DatabaseConfig onto pgxpool settings. Queries are traced
// at debug level.
func poolConfig(cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pc.MaxConns = int32(cfg.MaxOpenConns)
	pc.MinConns = int32(cfg.MaxIdleConns)
	pc.MaxConnLifetime = cfg.ConnMaxLifetime
	pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	pc.ConnConfig.ConnectTimeout = connectTimeout
	if logger.GetLevel() <= zerolog.DebugLevel {
		pc.ConnConfig.Tracer = debugTracer{logger: logger}
	}
	return pc, nil
}

// NewDB dials PostgreSQL and verifies the pool with a ping.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	pc, err := poolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).
		Str("dbname", cfg.Database).
		Int32("pool_max", pc.MaxConns).
		Msg("postgres ready")

	return &DB{Pool: pool, logger: logger}, nil
}

func (db *DB) Close() error {
	db.Pool.Close()
	db.logger.Info().Msg("postgres pool closed")
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Health runs a trivial query on a pooled connection.
func (db *DB) Health(ctx context.Context) error {
	var one int
	if err := db.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Querier is what pgxpool.Pool and pgx.Tx have in common for the repositories.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

type txKey struct{}

// q returns the transaction carried by ctx, or the pool.
func (db *DB) q(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db.Pool
}

func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTxOptions(ctx, repository.TxOptions{}, fn)
}

// WithTxOptions runs fn in one transaction, committed only when fn returns nil.
// A transaction already carried by ctx is joined instead of nested.
func (db *DB) WithTxOptions(ctx context.Context, opts repository.TxOptions, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	var txOpts pgx.TxOptions
	if opts.ReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}

	// BeginTxFunc rolls back on error or panic.
	return pgx.BeginTxFunc(ctx, db.Pool, txOpts, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// withProvider opens a database/sql view of the pool for goose and closes it afterwards.
func (db *DB) withProvider(fn func(p *goose.Provider) error) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	defer func(sqlDB *sql.DB) { _ = sqlDB.Close() }(sqlDB)

	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}
	return fn(p)
}

// Migrate applies every pending migration.
func (db *DB) Migrate(ctx context.Context) error {
	return db.withProvider(func(p *goose.Provider) error {
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
	})
}

// Rollback reverts the most recently applied migration.
func (db *DB) Rollback(ctx context.Context) error {
	return db.withProvider(func(p *goose.Provider) error {
		r, err := p.Down(ctx)
		if errors.Is(err, goose.ErrNoNextVersion) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		db.logger.Info().Int64("version", r.Source.Version).Msg("rolled back migration")
		return nil
	})
}

// MigrationStatus lists every known migration and whether it is applied.
func (db *DB) MigrationStatus(ctx context.Context) ([]repository.MigrationState, error) {
	var states []repository.MigrationState
	err := db.withProvider(func(p *goose.Provider) error {
		statuses, err := p.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		for _, s := range statuses {
			states = append(states, repository.MigrationState{
				Version:   s.Source.Version,
				Name:      filepath.Base(s.Source.Path),
				Applied:   s.State == goose.StateApplied,
				AppliedAt: s.AppliedAt,
			})
		}
		return nil
	})
	return states, err
}

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

// debugTracer logs each statement with its duration.
type debugTracer struct {
	logger zerolog.Logger
}

func (t debugTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: time.Now()})
}

func (t debugTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	t.logger.Debug().
		Err(data.Err).
		Str("sql", start.sql).
		Stringer("tag", data.CommandTag).
		Dur("took", time.Since(start.at)).
		Msg("postgres query")
}

// Ensure DB implements the repository interfaces.
var (
	_ repository.TxManager = (*DB)(nil)
	_ repository.Migrator  = (*DB)(nil)
	_ repository.Database  = (*DB)(nil)
)

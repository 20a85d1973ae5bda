package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// migrationLockID serializes concurrent migrators on one Postgres database.
const migrationLockID int64 = 0x52435054 // "RCPT"

// TxBeginner is satisfied by *pgxpool.Pool and pgxmock pools.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migrate creates or updates the schema for d's dialect.
func Migrate(ctx context.Context, d *DB, logger *slog.Logger) error {
	if d.Dialect == DialectPostgres && d.Pool != nil {
		return MigratePostgres(ctx, d.Pool, logger)
	}
	start := time.Now()
	if _, err := d.SQL.ExecContext(ctx, sqliteMigration); err != nil {
		logger.Error("migrate.failed", "dialect", d.Dialect, "error", err)
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	logger.Info("migrate.ok", "dialect", d.Dialect, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// MigratePostgres applies the schema in one transaction holding an advisory
// lock, so workers starting together do not race on DDL.
func MigratePostgres(ctx context.Context, pool TxBeginner, logger *slog.Logger) error {
	start := time.Now()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: migrate: begin: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("postgres: migrate: lock: %w", err)
	}
	if _, err := tx.Exec(ctx, postgresMigration); err != nil {
		_ = tx.Rollback(ctx)
		logger.Error("migrate.failed", "dialect", DialectPostgres, "error", err)
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: migrate: commit: %w", err)
	}
	logger.Info("migrate.ok", "dialect", DialectPostgres, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

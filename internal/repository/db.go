package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects SQL flavour and locking strategy.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB bundles the database/sql handle used by the store with the pgx pool
// behind it (nil for SQLite).
type DB struct {
	SQL     *sql.DB
	Pool    *pgxpool.Pool
	Dialect Dialect
}

// DialectFor infers the backend from a DSN.
// "sqlite://path", "sqlite:path" and "file:..." select SQLite; anything else is Postgres.
func DialectFor(dsn string) Dialect {
	if strings.HasPrefix(dsn, "sqlite:") || strings.HasPrefix(dsn, "file:") {
		return DialectSQLite
	}
	return DialectPostgres
}

// Open connects to the database named by cfg.DSN.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if DialectFor(cfg.DSN) == DialectSQLite {
		return OpenSQLite(cfg.DSN, logger)
	}
	return OpenPostgres(ctx, cfg, logger)
}

// OpenPostgres creates a pgx pool and wraps it as *sql.DB.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dialect", DialectPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "receipts-pipeline"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{SQL: db, Pool: pool, Dialect: DialectPostgres}, nil
}

// OpenSQLite opens a SQLite database through modernc.org/sqlite.
// ":memory:" gets a private shared-cache in-memory database.
func OpenSQLite(dsn string, logger *slog.Logger) (*DB, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "sqlite:")
	if path == ":memory:" || path == "" {
		path = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared", uuid.NewString())
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// BEGIN IMMEDIATE takes the write lock up front, so a second handle on the
	// same file waits out busy_timeout instead of failing the lock upgrade.
	path += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate"

	logger.Info("opening sqlite database", "dialect", DialectSQLite)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// single writer; also keeps in-memory databases alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &DB{SQL: db, Dialect: DialectSQLite}, nil
}

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	logger.Info("closing database connections")
	if d.SQL != nil {
		if err := d.SQL.Close(); err != nil {
			logger.Error("failed to close sql db", "error", err)
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	logger.Info("database connections closed")
}

// Pinger is satisfied by *pgxpool.Pool and pgxmock pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck pings the pool to catch DSN issues early.
func HealthCheck(ctx context.Context, p Pinger, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := p.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// Ping checks whichever handle backs d.
func (d *DB) Ping(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	if d.Pool != nil {
		return HealthCheck(ctx, d.Pool, timeout, logger)
	}
	return HealthCheck(ctx, sqlPinger{d.SQL}, timeout, logger)
}

type sqlPinger struct{ db *sql.DB }

func (p sqlPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

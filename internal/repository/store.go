package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

// Store is the durable Job Store. All pipeline mutation goes through InTx.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	GetReceipt(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	BacklogStats(ctx context.Context) (BacklogStats, error)
	ListSuggestionRules(ctx context.Context) ([]entity.SuggestionRule, error)
	Dialect() Dialect
}

// Tx is the set of operations available inside one store transaction.
type Tx interface {
	ReceiptTx
	JobTx
	ApprovalTx
	RuleTx
}

// ReceiptTx mutates receipts.
type ReceiptTx interface {
	CreateReceipt(ctx context.Context, r *entity.Receipt) error
	GetReceipt(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	// SaveNormalizedReceipt stores normalized bytes and moves the receipt to Processing.
	SaveNormalizedReceipt(ctx context.Context, id uuid.UUID, data []byte, now time.Time) error
	// CompleteReceiptText applies only while the receipt is still Processing.
	CompleteReceiptText(ctx context.Context, id uuid.UUID, text string, confidence float64, now time.Time) (bool, error)
	// FailReceipt marks the receipt Failed; with onlyFrom it applies only from those statuses.
	FailReceipt(ctx context.Context, id uuid.UUID, now time.Time, onlyFrom ...constants.ReceiptStatus) (bool, error)
}

// JobTx claims and writes processing jobs.
type JobTx interface {
	InsertJob(ctx context.Context, job *entity.ProcessingJob) error
	ClaimPendingJobs(ctx context.Context, limit int, now time.Time) ([]*entity.ProcessingJob, error)
	ClaimNormalizedJobs(ctx context.Context, limit int) ([]*entity.ProcessingJob, error)
	SaveJob(ctx context.Context, job *entity.ProcessingJob, expected constants.JobStatus) error
	CountJobs(ctx context.Context, receiptID uuid.UUID) (int, error)
}

// ApprovalTx persists approval outcomes.
type ApprovalTx interface {
	InsertDecision(ctx context.Context, d *entity.ReceiptDecision) error
	GetTransactionByReceipt(ctx context.Context, receiptID uuid.UUID) (*entity.FinancialTransaction, error)
	SaveTransaction(ctx context.Context, t *entity.FinancialTransaction) error
	SaveApproval(ctx context.Context, r *entity.Receipt, now time.Time) error
}

// RuleTx aggregates decisions into suggestion rules.
type RuleTx interface {
	AggregateDecisions(ctx context.Context, minOccurrences int) ([]entity.DecisionGroup, error)
	UpsertSuggestionRule(ctx context.Context, g entity.DecisionGroup, now time.Time) (inserted bool, err error)
}

// querier is the subset of *sql.DB / *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlStore struct {
	db      *sql.DB
	dialect Dialect
	log     *slog.Logger
}

// NewStore returns a Store over d.
func NewStore(d *DB, log *slog.Logger) Store {
	if log == nil {
		log = slog.Default()
	}
	return &sqlStore{db: d.SQL, dialect: d.Dialect, log: log}
}

func (s *sqlStore) Dialect() Dialect { return s.dialect }

// InTx runs fn in a transaction, committing when fn returns nil.
func (s *sqlStore) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{q: s.q(tx), dialect: s.dialect, log: s.log}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("tx rollback failed", "err", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *sqlStore) q(inner querier) dialectQuerier {
	return dialectQuerier{inner: inner, dialect: s.dialect}
}

type sqlTx struct {
	q       dialectQuerier
	dialect Dialect
	log     *slog.Logger
}

// dialectQuerier rewrites `?` placeholders to `$n` for Postgres.
type dialectQuerier struct {
	inner   querier
	dialect Dialect
}

func (d dialectQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.inner.ExecContext(ctx, rebind(d.dialect, query), args...)
}

func (d dialectQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.inner.QueryContext(ctx, rebind(d.dialect, query), args...)
}

func (d dialectQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.inner.QueryRowContext(ctx, rebind(d.dialect, query), args...)
}

func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// skipLocked is appended to claim queries; SQLite serializes writers instead.
func skipLocked(d Dialect, of string) string {
	if d != DialectPostgres {
		return ""
	}
	if of == "" {
		return " FOR UPDATE SKIP LOCKED"
	}
	return " FOR UPDATE OF " + of + " SKIP LOCKED"
}

// utc normalises timestamps before they hit the database.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: utc(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func uuidPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}

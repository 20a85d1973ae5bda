package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

// BacklogStats is the raw material for a backlog snapshot.
// Oldest* fields are nil when no row qualifies.
type BacklogStats struct {
	Receipts       map[constants.ReceiptStatus]int
	Jobs           map[constants.JobStatus]int
	AwaitingReview int

	OldestPendingReceipt *time.Time // uploaded_at
	OldestPendingJob     *time.Time // created_at
	OldestProcessingJob  *time.Time // started_at, else created_at
}

// BacklogStats runs read-only aggregate queries outside any transaction.
func (s *sqlStore) BacklogStats(ctx context.Context) (BacklogStats, error) {
	q := s.q(s.db)
	stats := BacklogStats{
		Receipts: make(map[constants.ReceiptStatus]int, len(constants.ReceiptStatuses)),
		Jobs:     make(map[constants.JobStatus]int, len(constants.JobStatuses)),
	}
	for _, st := range constants.ReceiptStatuses {
		stats.Receipts[st] = 0
	}
	for _, st := range constants.JobStatuses {
		stats.Jobs[st] = 0
	}

	if err := countByStatus(ctx, q, `SELECT status, COUNT(*) FROM receipts GROUP BY status`, func(st string, n int) {
		stats.Receipts[constants.ReceiptStatus(st)] = n
	}); err != nil {
		return BacklogStats{}, fmt.Errorf("count receipts: %w", err)
	}
	if err := countByStatus(ctx, q, `SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`, func(st string, n int) {
		stats.Jobs[constants.JobStatus(st)] = n
	}); err != nil {
		return BacklogStats{}, fmt.Errorf("count jobs: %w", err)
	}

	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM receipts WHERE status = ? AND transaction_id IS NULL`,
		string(constants.ReceiptStatusCompleted)).Scan(&stats.AwaitingReview); err != nil {
		return BacklogStats{}, fmt.Errorf("count awaiting review: %w", err)
	}

	var err error
	if stats.OldestPendingReceipt, err = oldest(ctx, q,
		`SELECT uploaded_at FROM receipts WHERE status = ? ORDER BY uploaded_at LIMIT 1`,
		string(constants.ReceiptStatusPending)); err != nil {
		return BacklogStats{}, fmt.Errorf("oldest pending receipt: %w", err)
	}
	if stats.OldestPendingJob, err = oldest(ctx, q,
		`SELECT created_at FROM processing_jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		string(constants.JobStatusPending)); err != nil {
		return BacklogStats{}, fmt.Errorf("oldest pending job: %w", err)
	}

	// COALESCE would lose the column type on SQLite, so take both branches.
	started, err := oldest(ctx, q,
		`SELECT started_at FROM processing_jobs WHERE status = ? AND started_at IS NOT NULL ORDER BY started_at LIMIT 1`,
		string(constants.JobStatusProcessing))
	if err != nil {
		return BacklogStats{}, fmt.Errorf("oldest processing job: %w", err)
	}
	unstarted, err := oldest(ctx, q,
		`SELECT created_at FROM processing_jobs WHERE status = ? AND started_at IS NULL ORDER BY created_at LIMIT 1`,
		string(constants.JobStatusProcessing))
	if err != nil {
		return BacklogStats{}, fmt.Errorf("oldest processing job: %w", err)
	}
	stats.OldestProcessingJob = earliest(started, unstarted)
	return stats, nil
}

func countByStatus(ctx context.Context, q dialectQuerier, query string, set func(string, int)) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st string
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return err
		}
		set(st, n)
	}
	return rows.Err()
}

func oldest(ctx context.Context, q dialectQuerier, query string, args ...any) (*time.Time, error) {
	var t sql.NullTime
	err := q.QueryRowContext(ctx, query, args...).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return timePtr(t), nil
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

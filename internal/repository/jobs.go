package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

var jobColumnList = []string{
	"id", "receipt_id", "status", "created_at", "available_at", "started_at", "completed_at",
	"retry_count", "error_message",
}

func jobColumns(alias string) string {
	if alias == "" {
		return strings.Join(jobColumnList, ", ")
	}
	cols := make([]string, len(jobColumnList))
	for i, c := range jobColumnList {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (t *sqlTx) InsertJob(ctx context.Context, job *entity.ProcessingJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = utc(job.CreatedAt)
	if job.AvailableAt.IsZero() {
		job.AvailableAt = job.CreatedAt
	}
	job.AvailableAt = utc(job.AvailableAt)
	_, err := t.q.ExecContext(ctx, `INSERT INTO processing_jobs (`+jobColumns("")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ReceiptID, string(job.Status), job.CreatedAt, job.AvailableAt,
		nullTime(job.StartedAt), nullTime(job.CompletedAt), job.RetryCount, nullString(job.ErrorMessage),
	)
	if err != nil {
		t.log.Error("processing_job insert failed", "receipt_id", job.ReceiptID, "err", err)
		return fmt.Errorf("insert job: %w", err)
	}
	t.log.Debug("processing_job inserted", "job_id", job.ID, "receipt_id", job.ReceiptID)
	return nil
}

// ClaimPendingJobs moves up to limit Pending jobs, oldest created first, to
// Processing. Each row is taken with a compare-and-swap on its status so a
// job can only be claimed by one worker; rows lost to another worker are
// skipped. On Postgres the candidate read also locks rows with SKIP LOCKED.
func (t *sqlTx) ClaimPendingJobs(ctx context.Context, limit int, now time.Time) ([]*entity.ProcessingJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	now = utc(now)
	candidates, err := t.queryJobs(ctx, `SELECT `+jobColumns("")+` FROM processing_jobs
		WHERE status = ? AND available_at <= ?
		ORDER BY created_at, id
		LIMIT ?`+skipLocked(t.dialect, ""),
		string(constants.JobStatusPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}

	claimed := make([]*entity.ProcessingJob, 0, len(candidates))
	for _, job := range candidates {
		if err := job.Start(now); err != nil {
			return nil, err
		}
		res, err := t.q.ExecContext(ctx,
			`UPDATE processing_jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(job.Status), nullTime(job.StartedAt), job.ID, string(constants.JobStatusPending))
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", job.ID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			t.log.Debug("processing_job claimed elsewhere", "job_id", job.ID)
			continue
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// ClaimNormalizedJobs returns up to limit jobs whose normalize stage is
// Completed while their receipt is still Processing, oldest completion first.
// Only the newest job of a receipt qualifies.
func (t *sqlTx) ClaimNormalizedJobs(ctx context.Context, limit int) ([]*entity.ProcessingJob, error) {
	if limit <= 0 {
		return nil, nil
	}
	jobs, err := t.queryJobs(ctx, `SELECT `+jobColumns("j")+` FROM processing_jobs j
		JOIN receipts r ON r.id = j.receipt_id
		WHERE j.status = ? AND r.status = ?
		AND NOT EXISTS (
			SELECT 1 FROM processing_jobs n
			WHERE n.receipt_id = j.receipt_id AND n.created_at > j.created_at
		)
		ORDER BY j.completed_at, j.id
		LIMIT ?`+skipLocked(t.dialect, "j, r"),
		string(constants.JobStatusCompleted), string(constants.ReceiptStatusProcessing), limit)
	if err != nil {
		return nil, fmt.Errorf("select normalized jobs: %w", err)
	}
	return jobs, nil
}

// SaveJob writes job's state if the stored row is still in expected.
func (t *sqlTx) SaveJob(ctx context.Context, job *entity.ProcessingJob, expected constants.JobStatus) error {
	res, err := t.q.ExecContext(ctx, `UPDATE processing_jobs
		SET status = ?, started_at = ?, completed_at = ?, retry_count = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		string(job.Status), nullTime(job.StartedAt), nullTime(job.CompletedAt), job.RetryCount,
		nullString(job.ErrorMessage), job.ID, string(expected))
	if err != nil {
		t.log.Error("processing_job save failed", "job_id", job.ID, "err", err)
		return fmt.Errorf("save job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if n != 1 {
		return common.NewAppError("CONFLICT", fmt.Sprintf("job %s is no longer %s", job.ID, expected), common.ErrConflict)
	}
	return nil
}

func (t *sqlTx) CountJobs(ctx context.Context, receiptID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_jobs WHERE receipt_id = ?`, receiptID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}

// queryJobs reads every row before returning so the connection is free for
// follow-up statements in the same transaction.
func (t *sqlTx) queryJobs(ctx context.Context, query string, args ...any) ([]*entity.ProcessingJob, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.ProcessingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*entity.ProcessingJob, error) {
	var (
		j                  entity.ProcessingJob
		status             string
		started, completed sql.NullTime
		errMsg             sql.NullString
	)
	if err := row.Scan(&j.ID, &j.ReceiptID, &status, &j.CreatedAt, &j.AvailableAt,
		&started, &completed, &j.RetryCount, &errMsg); err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.AvailableAt = j.AvailableAt.UTC()
	j.StartedAt = timePtr(started)
	j.CompletedAt = timePtr(completed)
	j.ErrorMessage = stringPtr(errMsg)
	return &j, nil
}

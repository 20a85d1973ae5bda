package async

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

// JobWriter appends processing jobs; satisfied by repository.Tx.
type JobWriter interface {
	InsertJob(ctx context.Context, job *entity.ProcessingJob) error
}

// JobCounter also reports how many jobs a receipt already has.
type JobCounter interface {
	JobWriter
	CountJobs(ctx context.Context, receiptID uuid.UUID) (int, error)
}

// RetryPolicy bounds automatic re-enqueue after a failed attempt.
// MaxAttempts <= 1 disables it.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Enabled reports whether failed receipts get another job.
func (p RetryPolicy) Enabled() bool { return p.MaxAttempts > 1 }

// Backoff returns the delay before attempt n+1 after n attempts (n >= 1):
// base, 2*base, 4*base, ...
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempts && d < 24*time.Hour; i++ {
		d *= 2
	}
	return d
}

// Queue is the processing queue: it appends Pending jobs inside the caller's
// transaction and never deduplicates.
type Queue struct {
	logger *slog.Logger
	now    func() time.Time
	retry  RetryPolicy
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(q *Queue) {
		q.retry = p
	}
}

func NewQueue(logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue creates one Pending job for receiptID. Errors are fatal to the
// caller's transaction.
func (q *Queue) Enqueue(ctx context.Context, w JobWriter, receiptID uuid.UUID) (*entity.ProcessingJob, error) {
	job := entity.NewProcessingJob(receiptID, q.now().UTC())
	if err := w.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue receipt %s: %w", receiptID, err)
	}
	q.logger.Info("queue.enqueued", "receipt_id", receiptID, "job_id", job.ID)
	return job, nil
}

// Retry enqueues a delayed job for receiptID if the retry policy allows
// another attempt. It returns nil when no job was created.
func (q *Queue) Retry(ctx context.Context, w JobCounter, receiptID uuid.UUID) (*entity.ProcessingJob, error) {
	if !q.retry.Enabled() {
		return nil, nil
	}
	attempts, err := w.CountJobs(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if attempts >= q.retry.MaxAttempts {
		q.logger.Warn("queue.retry.exhausted", "receipt_id", receiptID, "attempts", attempts)
		return nil, nil
	}
	now := q.now().UTC()
	job := entity.NewProcessingJob(receiptID, now)
	job.AvailableAt = now.Add(q.retry.Backoff(attempts))
	if err := w.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("retry receipt %s: %w", receiptID, err)
	}
	q.logger.Info("queue.retry.scheduled",
		"receipt_id", receiptID,
		"job_id", job.ID,
		"attempt", attempts+1,
		"available_at", job.AvailableAt,
	)
	return job, nil
}

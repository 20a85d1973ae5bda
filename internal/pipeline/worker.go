// Package pipeline drives processing jobs through the normalize and extract
// stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/async"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

// Normalizer prepares raw receipt bytes for text extraction.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte) ([]byte, error)
}

// Extractor recognizes text in a normalized image. Confidence is expected in
// [0,1] but is stored as returned.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// Retrier schedules another attempt for a failed receipt; nil job means none.
type Retrier interface {
	Retry(ctx context.Context, w async.JobCounter, receiptID uuid.UUID) (*entity.ProcessingJob, error)
}

const (
	DefaultBatchSize = 5

	errReceiptNotFound = "receipt not found"
)

// Worker runs one batch per stage per call. It holds no job state between
// calls; claims and outcomes live in the store.
type Worker struct {
	store      repository.Store
	normalizer Normalizer
	extractor  Extractor
	retrier    Retrier
	batchSize  int
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithRetrier enables re-enqueue after failures.
func WithRetrier(r Retrier) Option {
	return func(w *Worker) {
		w.retrier = r
	}
}

func NewWorker(store repository.Store, n Normalizer, e Extractor, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		store:      store,
		normalizer: n,
		extractor:  e,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
		logger:     logger,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// NormalizePending is Stage A. It claims up to batchSize Pending jobs, oldest
// first, and commits the whole batch in one transaction. It returns the
// number of jobs claimed. Normalizer failures are recorded per job; store
// failures and cancellation abort the batch.
func (w *Worker) NormalizePending(ctx context.Context) (int, error) {
	start := time.Now()
	var processed, failed int
	err := w.store.InTx(ctx, func(tx repository.Tx) error {
		now := w.now().UTC()
		jobs, err := tx.ClaimPendingJobs(ctx, w.batchSize, now)
		if err != nil {
			return err
		}
		processed = len(jobs)
		for _, job := range jobs {
			ok, err := w.normalizeOne(ctx, tx, job, now)
			if err != nil {
				return err
			}
			if !ok {
				failed++
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Error("pipeline.normalize.batch.failed", "err", err)
		return 0, err
	}
	if processed > 0 {
		w.logger.Info("pipeline.normalize.batch",
			"batch", processed,
			"failed", failed,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return processed, nil
}

// normalizeOne reports false when the job ended Failed.
func (w *Worker) normalizeOne(ctx context.Context, tx repository.Tx, job *entity.ProcessingJob, now time.Time) (bool, error) {
	receipt, err := tx.GetReceipt(ctx, job.ReceiptID)
	if errors.Is(err, common.ErrNotFound) {
		w.logger.Warn("pipeline.normalize.failed", "job_id", job.ID, "receipt_id", job.ReceiptID, "err", errReceiptNotFound)
		if err := job.Fail(now, errReceiptNotFound); err != nil {
			return false, err
		}
		return false, tx.SaveJob(ctx, job, constants.JobStatusProcessing)
	}
	if err != nil {
		return false, err
	}

	normalized, nerr := w.normalizer.Normalize(ctx, receipt.ImageData)
	if nerr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		w.logger.Warn("pipeline.normalize.failed", "job_id", job.ID, "receipt_id", receipt.ID, "err", nerr)
		if err := job.Fail(now, nerr.Error()); err != nil {
			return false, err
		}
		if err := tx.SaveJob(ctx, job, constants.JobStatusProcessing); err != nil {
			return false, err
		}
		if _, err := tx.FailReceipt(ctx, receipt.ID, now); err != nil {
			return false, err
		}
		return false, w.retry(ctx, tx, receipt.ID)
	}

	if err := tx.SaveNormalizedReceipt(ctx, receipt.ID, normalized, now); err != nil {
		return false, err
	}
	if err := job.Complete(now); err != nil {
		return false, err
	}
	if err := tx.SaveJob(ctx, job, constants.JobStatusProcessing); err != nil {
		return false, err
	}
	w.logger.Debug("pipeline.normalize.ok", "job_id", job.ID, "receipt_id", receipt.ID, "bytes", len(normalized))
	return true, nil
}

// ExtractNormalized is Stage B. It takes up to batchSize jobs whose normalize
// stage completed while the receipt is still Processing, oldest completion
// first. Extractor failures fail the receipt and count against the job,
// which stays Completed.
func (w *Worker) ExtractNormalized(ctx context.Context) (int, error) {
	start := time.Now()
	var processed, failed int
	err := w.store.InTx(ctx, func(tx repository.Tx) error {
		now := w.now().UTC()
		jobs, err := tx.ClaimNormalizedJobs(ctx, w.batchSize)
		if err != nil {
			return err
		}
		processed = len(jobs)
		for _, job := range jobs {
			ok, err := w.extractOne(ctx, tx, job, now)
			if err != nil {
				return err
			}
			if !ok {
				failed++
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Error("pipeline.extract.batch.failed", "err", err)
		return 0, err
	}
	if processed > 0 {
		w.logger.Info("pipeline.extract.batch",
			"batch", processed,
			"failed", failed,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return processed, nil
}

func (w *Worker) extractOne(ctx context.Context, tx repository.Tx, job *entity.ProcessingJob, now time.Time) (bool, error) {
	receipt, err := tx.GetReceipt(ctx, job.ReceiptID)
	if err != nil {
		return false, fmt.Errorf("load receipt %s: %w", job.ReceiptID, err)
	}

	text, confidence, xerr := w.extractor.Extract(ctx, receipt.NormalizedData)
	if xerr != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		w.logger.Warn("pipeline.extract.failed", "job_id", job.ID, "receipt_id", receipt.ID, "err", xerr)
		applied, err := tx.FailReceipt(ctx, receipt.ID, now, constants.ReceiptStatusProcessing)
		if err != nil {
			return false, err
		}
		if !applied {
			return false, nil
		}
		if err := job.RecordExtractFailure(xerr.Error()); err != nil {
			return false, err
		}
		if err := tx.SaveJob(ctx, job, constants.JobStatusCompleted); err != nil {
			return false, err
		}
		return false, w.retry(ctx, tx, receipt.ID)
	}

	applied, err := tx.CompleteReceiptText(ctx, receipt.ID, text, confidence, now)
	if err != nil {
		return false, err
	}
	if !applied {
		w.logger.Debug("pipeline.extract.skipped", "job_id", job.ID, "receipt_id", receipt.ID)
		return true, nil
	}
	w.logger.Debug("pipeline.extract.ok",
		"job_id", job.ID,
		"receipt_id", receipt.ID,
		"chars", len(text),
		"confidence", confidence,
	)
	return true, nil
}

func (w *Worker) retry(ctx context.Context, tx repository.Tx, receiptID uuid.UUID) error {
	if w.retrier == nil {
		return nil
	}
	_, err := w.retrier.Retry(ctx, tx, receiptID)
	return err
}

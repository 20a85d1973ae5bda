// Package monitor computes backlog health snapshots and raises alerts.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

// StatsSource is the read side of the job store.
type StatsSource interface {
	BacklogStats(ctx context.Context) (repository.BacklogStats, error)
}

// Notifier is told about snapshots that carry an alert.
type Notifier interface {
	Notify(ctx context.Context, snap entity.BacklogSnapshot) error
}

// Thresholds are the ages at which each alert fires (age >= threshold).
type Thresholds struct {
	PendingReceipt time.Duration
	PendingJob     time.Duration
	ProcessingJob  time.Duration
}

// ThresholdsFromMinutes builds thresholds from whole-minute settings.
func ThresholdsFromMinutes(pendingReceipt, pendingJob, processingJob int) Thresholds {
	return Thresholds{
		PendingReceipt: time.Duration(pendingReceipt) * time.Minute,
		PendingJob:     time.Duration(pendingJob) * time.Minute,
		ProcessingJob:  time.Duration(processingJob) * time.Minute,
	}
}

// Monitor is read-only and safe to run alongside the pipeline stages.
type Monitor struct {
	source     StatsSource
	thresholds Thresholds
	notifier   Notifier
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Monitor)

func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMonitor(source StatsSource, th Thresholds, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{source: source, thresholds: th, now: time.Now, logger: logger}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Snapshot reads the store and evaluates the alerts. A notifier failure is
// logged and does not fail the snapshot.
func (m *Monitor) Snapshot(ctx context.Context) (entity.BacklogSnapshot, error) {
	stats, err := m.source.BacklogStats(ctx)
	if err != nil {
		m.logger.Error("backlog.snapshot.failed", "err", err)
		return entity.BacklogSnapshot{}, err
	}
	snap := Evaluate(stats, m.thresholds, m.now().UTC())
	m.log(snap)

	if snap.HasAlert && m.notifier != nil {
		if err := m.notifier.Notify(ctx, snap); err != nil {
			m.logger.Warn("backlog.notify.failed", "err", err)
		}
	}
	return snap, nil
}

// Evaluate turns raw stats into a snapshot at now.
func Evaluate(stats repository.BacklogStats, th Thresholds, now time.Time) entity.BacklogSnapshot {
	snap := entity.BacklogSnapshot{
		TakenAt:        now,
		Receipts:       stats.Receipts,
		Jobs:           stats.Jobs,
		AwaitingReview: stats.AwaitingReview,

		OldestPendingReceiptAge: age(now, stats.OldestPendingReceipt),
		OldestPendingJobAge:     age(now, stats.OldestPendingJob),
		OldestProcessingJobAge:  age(now, stats.OldestProcessingJob),
	}
	snap.PendingReceiptAlert = exceeds(snap.OldestPendingReceiptAge, th.PendingReceipt)
	snap.PendingJobAlert = exceeds(snap.OldestPendingJobAge, th.PendingJob)
	snap.ProcessingJobAlert = exceeds(snap.OldestProcessingJobAge, th.ProcessingJob)
	snap.HasAlert = snap.PendingReceiptAlert || snap.PendingJobAlert || snap.ProcessingJobAlert
	return snap
}

// age is clamped at zero so clock skew between workers never yields a negative age.
func age(now time.Time, since *time.Time) *time.Duration {
	if since == nil {
		return nil
	}
	d := now.Sub(*since)
	if d < 0 {
		d = 0
	}
	return &d
}

func exceeds(d *time.Duration, threshold time.Duration) bool {
	return d != nil && *d >= threshold
}

func (m *Monitor) log(snap entity.BacklogSnapshot) {
	attrs := []any{
		"pending_receipts", snap.Receipts[constants.ReceiptStatusPending],
		"processing_receipts", snap.Receipts[constants.ReceiptStatusProcessing],
		"failed_receipts", snap.FailedReceipts(),
		"awaiting_review", snap.AwaitingReview,
		"pending_jobs", snap.Jobs[constants.JobStatusPending],
		"processing_jobs", snap.Jobs[constants.JobStatusProcessing],
		"failed_jobs", snap.Jobs[constants.JobStatusFailed],
		"oldest_pending_receipt_min", minutes(snap.OldestPendingReceiptAge),
		"oldest_pending_job_min", minutes(snap.OldestPendingJobAge),
		"oldest_processing_job_min", minutes(snap.OldestProcessingJobAge),
	}
	if snap.HasAlert {
		attrs = append(attrs,
			"pending_receipt_alert", snap.PendingReceiptAlert,
			"pending_job_alert", snap.PendingJobAlert,
			"processing_job_alert", snap.ProcessingJobAlert,
		)
		m.logger.Warn("backlog.snapshot", attrs...)
		return
	}
	m.logger.Info("backlog.snapshot", attrs...)
}

func minutes(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return d.Minutes()
}

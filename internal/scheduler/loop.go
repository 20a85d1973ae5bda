// Package scheduler sequences the pipeline stages, the backlog monitor and the
// rule refresher in a single cooperative loop.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/rules"
)

// Stages is the pipeline worker.
type Stages interface {
	NormalizePending(ctx context.Context) (int, error)
	ExtractNormalized(ctx context.Context) (int, error)
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (entity.BacklogSnapshot, error)
}

type RuleRefresher interface {
	Refresh(ctx context.Context) (rules.Result, error)
}

// State is everything the loop carries between ticks.
type State struct {
	LastSnapshot time.Time
	LastRefresh  time.Time
}

// TickResult reports what one tick did.
type TickResult struct {
	Normalized  int
	Extracted   int
	Snapshotted bool
	Refreshed   bool
}

// Idle reports whether neither stage found work.
func (r TickResult) Idle() bool { return r.Normalized == 0 && r.Extracted == 0 }

// Config holds the loop timings. A nil schedule disables that job.
type Config struct {
	IdleDelay        time.Duration
	SnapshotSchedule cron.Schedule
	RefreshSchedule  cron.Schedule
}

// Every wraps a fixed interval as a schedule; non-positive disables.
// Unlike cron.Every it keeps sub-second precision, so a job is due exactly
// when now-last >= d.
func Every(d time.Duration) cron.Schedule {
	if d <= 0 {
		return nil
	}
	return interval(d)
}

type interval time.Duration

func (d interval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Loop is the scheduler. It keeps no cross-tick state of its own; Run threads
// a State value through Tick.
type Loop struct {
	stages    Stages
	monitor   Snapshotter
	refresher RuleRefresher
	cfg       Config
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

type Option func(*Loop)

func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleeper replaces the idle sleep; it must return early when ctx ends.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

func NewLoop(stages Stages, monitor Snapshotter, refresher RuleRefresher, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		stages:    stages,
		monitor:   monitor,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepContext,
		logger:    logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// due reports whether a job last run at last should run at now.
func due(sched cron.Schedule, last, now time.Time) bool {
	if sched == nil {
		return false
	}
	return last.IsZero() || !sched.Next(last).After(now)
}

// Tick runs Stage A, Stage B, then the monitor and refresher when due. A
// stage error aborts the tick and st is returned unchanged. Monitor and
// refresher errors are logged and leave their timestamps alone so they run
// again next tick.
func (l *Loop) Tick(ctx context.Context, st State) (State, TickResult, error) {
	var res TickResult
	var err error

	if res.Normalized, err = l.stages.NormalizePending(ctx); err != nil {
		return st, res, fmt.Errorf("normalize stage: %w", err)
	}
	if res.Extracted, err = l.stages.ExtractNormalized(ctx); err != nil {
		return st, res, fmt.Errorf("extract stage: %w", err)
	}

	now := l.now().UTC()
	if l.monitor != nil && due(l.cfg.SnapshotSchedule, st.LastSnapshot, now) {
		if _, err := l.monitor.Snapshot(ctx); err != nil {
			l.logger.Warn("scheduler.snapshot.failed", "tick", common.TickIDFromContext(ctx), "err", err)
		} else {
			st.LastSnapshot = now
			res.Snapshotted = true
		}
	}
	if l.refresher != nil && due(l.cfg.RefreshSchedule, st.LastRefresh, now) {
		if _, err := l.refresher.Refresh(ctx); err != nil {
			l.logger.Warn("scheduler.refresh.failed", "tick", common.TickIDFromContext(ctx), "err", err)
		} else {
			st.LastRefresh = now
			res.Refreshed = true
		}
	}
	return st, res, nil
}

// Run ticks until ctx is cancelled, sleeping IdleDelay after an idle or
// failed tick. It returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("scheduler.started", "idle_delay", l.cfg.IdleDelay.String())
	var st State
	for tick := uint64(1); ; tick++ {
		if err := ctx.Err(); err != nil {
			l.logger.Info("scheduler.stopped", "ticks", tick-1)
			return err
		}
		tctx := common.WithTickID(ctx, tick)

		next, res, err := l.safeTick(tctx, st)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			l.logger.Error("scheduler.tick.failed", "tick", tick, "err", err)
		} else {
			st = next
			l.logger.Debug("scheduler.tick",
				"tick", tick,
				"normalized", res.Normalized,
				"extracted", res.Extracted,
				"snapshot", res.Snapshotted,
				"refresh", res.Refreshed,
			)
			if !res.Idle() {
				continue
			}
		}
		if err := l.sleep(ctx, l.cfg.IdleDelay); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			l.logger.Warn("scheduler.sleep.failed", "err", err)
		}
	}
}

func (l *Loop) safeTick(ctx context.Context, st State) (next State, res TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduler.tick.panic", "panic", r, "stack", string(debug.Stack()))
			next, res, err = st, TickResult{}, fmt.Errorf("tick panic: %v", r)
		}
	}()
	return l.Tick(ctx, st)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

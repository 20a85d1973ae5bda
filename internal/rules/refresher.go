// Package rules mines approval decisions into seller -> account suggestion rules.
package rules

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

const DefaultMinOccurrences = 3

// Result summarizes one refresh run.
type Result struct {
	Groups   int // qualifying (seller, purpose, posting) groups
	Inserted int
	Updated  int
}

// Written is the number of rules written by the run.
func (r Result) Written() int { return r.Inserted + r.Updated }

// Refresher recomputes every rule from scratch on each run, so repeated runs
// over the same decisions converge on the same rows.
type Refresher struct {
	store          repository.Store
	minOccurrences int
	now            func() time.Time
	logger         *slog.Logger
}

type Option func(*Refresher)

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRefresher(store repository.Store, minOccurrences int, logger *slog.Logger, opts ...Option) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}
	r := &Refresher{store: store, minOccurrences: minOccurrences, now: time.Now, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refresh aggregates decisions and upserts one rule per group whose count
// reaches the threshold, all in one transaction.
func (r *Refresher) Refresh(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result
	err := r.store.InTx(ctx, func(tx repository.Tx) error {
		res = Result{}
		groups, err := tx.AggregateDecisions(ctx, r.minOccurrences)
		if err != nil {
			return err
		}
		now := r.now().UTC()
		res.Groups = len(groups)
		for _, g := range groups {
			inserted, err := tx.UpsertSuggestionRule(ctx, g, now)
			if err != nil {
				return err
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("rules.refresh.failed", "min_occurrences", r.minOccurrences, "err", err)
		return Result{}, err
	}
	r.logger.Info("rules.refresh.ok",
		"min_occurrences", r.minOccurrences,
		"rules_written", res.Written(),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

// AggregateDecisions groups approval decisions by (seller, purpose account,
// posting account). Decisions without a seller or either account are ignored.
func (t *sqlTx) AggregateDecisions(ctx context.Context, minOccurrences int) ([]entity.DecisionGroup, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT r.seller_name, d.purpose_account_id, d.posting_account_id, COUNT(*)
		FROM receipt_decisions d
		JOIN receipts r ON r.id = d.receipt_id
		WHERE r.seller_name IS NOT NULL
		AND d.purpose_account_id IS NOT NULL
		AND d.posting_account_id IS NOT NULL
		GROUP BY r.seller_name, d.purpose_account_id, d.posting_account_id
		HAVING COUNT(*) >= ?
		ORDER BY r.seller_name, d.purpose_account_id, d.posting_account_id`, minOccurrences)
	if err != nil {
		return nil, fmt.Errorf("aggregate decisions: %w", err)
	}
	defer rows.Close()

	var groups []entity.DecisionGroup
	for rows.Next() {
		var g entity.DecisionGroup
		if err := rows.Scan(&g.SellerName, &g.PurposeAccountID, &g.PostingAccountID, &g.Count); err != nil {
			return nil, fmt.Errorf("scan decision group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpsertSuggestionRule overwrites the count of the rule keyed by g, creating
// it when absent. The key triple is unique in the table.
func (t *sqlTx) UpsertSuggestionRule(ctx context.Context, g entity.DecisionGroup, now time.Time) (bool, error) {
	now = utc(now)
	res, err := t.q.ExecContext(ctx, `UPDATE suggestion_rules SET occurrence_count = ?, last_updated_at = ?
		WHERE seller_name = ? AND purpose_account_id = ? AND posting_account_id = ?`,
		g.Count, now, g.SellerName, g.PurposeAccountID, g.PostingAccountID)
	if err != nil {
		return false, fmt.Errorf("update suggestion rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}

	return t.insertSuggestionRule(ctx, g, now)
}

// insertSuggestionRule reports inserted only when the new row was written.
// A concurrent refresher may insert the same key between the update and
// this statement; the conflict then updates that row and RETURNING yields
// its id instead of ours.
func (t *sqlTx) insertSuggestionRule(ctx context.Context, g entity.DecisionGroup, now time.Time) (bool, error) {
	id := uuid.New()
	var got uuid.UUID
	err := t.q.QueryRowContext(ctx, `INSERT INTO suggestion_rules
		(id, seller_name, purpose_account_id, posting_account_id, occurrence_count, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (seller_name, purpose_account_id, posting_account_id)
		DO UPDATE SET occurrence_count = excluded.occurrence_count, last_updated_at = excluded.last_updated_at
		RETURNING id`,
		id, g.SellerName, g.PurposeAccountID, g.PostingAccountID, g.Count, now, now).Scan(&got)
	if err != nil {
		return false, fmt.Errorf("insert suggestion rule: %w", err)
	}
	return got == id, nil
}

func (s *sqlStore) ListSuggestionRules(ctx context.Context) ([]entity.SuggestionRule, error) {
	rows, err := s.q(s.db).QueryContext(ctx, `SELECT id, seller_name, purpose_account_id, posting_account_id,
		occurrence_count, created_at, last_updated_at
		FROM suggestion_rules
		ORDER BY seller_name, occurrence_count DESC, purpose_account_id, posting_account_id`)
	if err != nil {
		return nil, fmt.Errorf("list suggestion rules: %w", err)
	}
	defer rows.Close()

	var out []entity.SuggestionRule
	for rows.Next() {
		var r entity.SuggestionRule
		if err := rows.Scan(&r.ID, &r.SellerName, &r.PurposeAccountID, &r.PostingAccountID,
			&r.OccurrenceCount, &r.CreatedAt, &r.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion rule: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.LastUpdatedAt = r.LastUpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

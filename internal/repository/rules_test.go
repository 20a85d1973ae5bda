package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

func seedDecision(t *testing.T, s Store, receiptID uuid.UUID, purpose, posting *uuid.UUID) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertDecision(context.Background(), &entity.ReceiptDecision{
			ReceiptID:        receiptID,
			PurposeAccountID: purpose,
			PostingAccountID: posting,
			CreatedBy:        uuid.New(),
			CreatedAt:        t0,
		})
	}))
}

func withSeller(name string) func(*entity.Receipt) {
	return func(r *entity.Receipt) { r.SellerName = &name }
}

func TestAggregateDecisions(t *testing.T) {
	s, _ := newTestStore(t)
	purpose, posting, other := uuid.New(), uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		r := seedReceipt(t, s, constants.ReceiptStatusCompleted, t0, withSeller("ACME"))
		seedDecision(t, s, r.ID, &purpose, &posting)
	}
	// below threshold
	for i := 0; i < 2; i++ {
		r := seedReceipt(t, s, constants.ReceiptStatusCompleted, t0, withSeller("ACME"))
		seedDecision(t, s, r.ID, &purpose, &other)
	}
	// excluded: no seller, or an account unset
	for i := 0; i < 3; i++ {
		noSeller := seedReceipt(t, s, constants.ReceiptStatusCompleted, t0)
		seedDecision(t, s, noSeller.ID, &purpose, &posting)
		r := seedReceipt(t, s, constants.ReceiptStatusCompleted, t0, withSeller("Bakery"))
		seedDecision(t, s, r.ID, nil, &posting)
		seedDecision(t, s, r.ID, &purpose, nil)
	}

	var groups []entity.DecisionGroup
	require.NoError(t, s.InTx(context.Background(), func(tx Tx) error {
		var err error
		groups, err = tx.AggregateDecisions(context.Background(), 3)
		return err
	}))
	require.Len(t, groups, 1)
	assert.Equal(t, entity.RuleKey{SellerName: "ACME", PurposeAccountID: purpose, PostingAccountID: posting}, groups[0].RuleKey)
	assert.Equal(t, 3, groups[0].Count)
}

func TestUpsertSuggestionRule(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := entity.DecisionGroup{
		RuleKey: entity.RuleKey{SellerName: "ACME", PurposeAccountID: uuid.New(), PostingAccountID: uuid.New()},
		Count:   3,
	}

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		inserted, err := tx.UpsertSuggestionRule(ctx, g, t0)
		require.NoError(t, err)
		assert.True(t, inserted)
		return nil
	}))

	g.Count = 7
	later := t0.Add(30 * time.Minute)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		inserted, err := tx.UpsertSuggestionRule(ctx, g, later)
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	}))

	rules, err := s.ListSuggestionRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, g.RuleKey, rules[0].RuleKey)
	assert.Equal(t, 7, rules[0].OccurrenceCount)
	assert.True(t, t0.Equal(rules[0].CreatedAt))
	assert.True(t, later.Equal(rules[0].LastUpdatedAt))
}

func TestInsertSuggestionRule_ConflictCountsAsUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	g := entity.DecisionGroup{
		RuleKey: entity.RuleKey{SellerName: "ACME", PurposeAccountID: uuid.New(), PostingAccountID: uuid.New()},
		Count:   3,
	}

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		inserted, err := tx.(*sqlTx).insertSuggestionRule(ctx, g, t0)
		require.NoError(t, err)
		assert.True(t, inserted)
		return nil
	}))

	// the row already exists, as if another refresher inserted it first
	g.Count = 5
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		inserted, err := tx.(*sqlTx).insertSuggestionRule(ctx, g, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, inserted)
		return nil
	}))

	rules, err := s.ListSuggestionRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 5, rules[0].OccurrenceCount)
}

func TestSuggestionRuleKeyIsUnique(t *testing.T) {
	_, db := newTestStore(t)
	purpose, posting := uuid.New(), uuid.New()
	insert := `INSERT INTO suggestion_rules
		(id, seller_name, purpose_account_id, posting_account_id, occurrence_count, created_at, last_updated_at)
		VALUES (?, ?, ?, ?, 3, ?, ?)`

	_, err := db.SQL.Exec(insert, uuid.New(), "ACME", purpose, posting, t0, t0)
	require.NoError(t, err)
	_, err = db.SQL.Exec(insert, uuid.New(), "ACME", purpose, posting, t0, t0)
	assert.Error(t, err)
}

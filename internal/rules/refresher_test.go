package rules

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) repository.Store {
	t.Helper()
	db, err := repository.OpenSQLite("sqlite::memory:", discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(discard()) })
	require.NoError(t, repository.Migrate(context.Background(), db, discard()))
	return repository.NewStore(db, discard())
}

// decide records n approvals for seller with the given accounts. A nil
// seller leaves the receipt's seller unset.
func decide(t *testing.T, s repository.Store, seller *string, purpose, posting *uuid.UUID, n int) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), func(tx repository.Tx) error {
		for i := 0; i < n; i++ {
			r := &entity.Receipt{
				ImageData:  []byte("x"),
				MimeType:   constants.MimeJPEG,
				UploadedBy: uuid.New(),
				UploadedAt: t0,
				SellerName: seller,
				Status:     constants.ReceiptStatusCompleted,
			}
			if err := tx.CreateReceipt(context.Background(), r); err != nil {
				return err
			}
			d := &entity.ReceiptDecision{
				ID:               uuid.New(),
				ReceiptID:        r.ID,
				PurposeAccountID: purpose,
				PostingAccountID: posting,
				CreatedBy:        uuid.New(),
				CreatedAt:        t0,
			}
			if err := tx.InsertDecision(context.Background(), d); err != nil {
				return err
			}
		}
		return nil
	}))
}

func ptr[T any](v T) *T { return &v }

func TestRefresh_UpsertsQualifyingGroups(t *testing.T) {
	s := newStore(t)
	office, bank, cash := uuid.New(), uuid.New(), uuid.New()

	decide(t, s, ptr("ACME"), &office, &bank, 3)
	decide(t, s, ptr("ACME"), &office, &cash, 2)   // below threshold
	decide(t, s, ptr("Globex"), &office, &bank, 4) // qualifies
	decide(t, s, nil, &office, &bank, 5)           // no seller
	decide(t, s, ptr("Initech"), nil, &bank, 5)    // no purpose account

	now := t0.Add(24 * time.Hour)
	res, err := NewRefresher(s, 3, discard(), WithClock(func() time.Time { return now })).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Groups: 2, Inserted: 2}, res)

	rules, err := s.ListSuggestionRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "ACME", rules[0].SellerName)
	assert.Equal(t, office, rules[0].PurposeAccountID)
	assert.Equal(t, bank, rules[0].PostingAccountID)
	assert.Equal(t, 3, rules[0].OccurrenceCount)
	assert.True(t, now.Equal(rules[0].CreatedAt))
	assert.True(t, now.Equal(rules[0].LastUpdatedAt))
	assert.Equal(t, "Globex", rules[1].SellerName)
	assert.Equal(t, 4, rules[1].OccurrenceCount)
}

func TestRefresh_Idempotent(t *testing.T) {
	s := newStore(t)
	office, bank := uuid.New(), uuid.New()
	decide(t, s, ptr("ACME"), &office, &bank, 3)

	clock := func() time.Time { return t0 }
	r := NewRefresher(s, 3, discard(), WithClock(clock))

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)
	first, err := s.ListSuggestionRules(context.Background())
	require.NoError(t, err)

	res, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Groups: 1, Updated: 1}, res)
	second, err := s.ListSuggestionRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRefresh_OverwritesCountAndKeepsCreatedAt(t *testing.T) {
	s := newStore(t)
	office, bank := uuid.New(), uuid.New()
	decide(t, s, ptr("ACME"), &office, &bank, 3)

	now := t0
	r := NewRefresher(s, 3, discard(), WithClock(func() time.Time { return now }))
	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	decide(t, s, ptr("ACME"), &office, &bank, 2)
	now = t0.Add(30 * time.Minute)
	res, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written())

	rules, err := s.ListSuggestionRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 5, rules[0].OccurrenceCount)
	assert.True(t, t0.Equal(rules[0].CreatedAt))
	assert.True(t, now.Equal(rules[0].LastUpdatedAt))
}

func TestRefresh_NoDecisions(t *testing.T) {
	res, err := NewRefresher(newStore(t), 0, discard()).Refresh(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Written())
}

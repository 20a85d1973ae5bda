package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
)

var t0 = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type fakeRules struct {
	rules []entity.SuggestionRule
	err   error
}

func (f fakeRules) ListSuggestionRules(context.Context) ([]entity.SuggestionRule, error) {
	return f.rules, f.err
}

type fakeBacklog struct{ snap entity.BacklogSnapshot }

func (f fakeBacklog) Snapshot(context.Context) (entity.BacklogSnapshot, error) { return f.snap, nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func open(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRulesXLSX(t *testing.T) {
	purpose, posting := uuid.New(), uuid.New()
	src := fakeRules{rules: []entity.SuggestionRule{{
		ID:              uuid.New(),
		RuleKey:         entity.RuleKey{SellerName: "ACME", PurposeAccountID: purpose, PostingAccountID: posting},
		OccurrenceCount: 4,
		CreatedAt:       t0,
		LastUpdatedAt:   t0.Add(time.Hour),
	}}}

	data, err := NewService(src, nil, quiet()).RulesXLSX(context.Background())
	require.NoError(t, err)

	f := open(t, data)
	assert.Equal(t, []string{"Rules"}, f.GetSheetList())
	rows, err := f.GetRows("Rules")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Seller", rows[0][0])
	assert.Equal(t, []string{"ACME", purpose.String(), posting.String(), "4", "2024-07-01 12:00:00", "2024-07-01 13:00:00"}, rows[1])
}

func TestRulesXLSX_Empty(t *testing.T) {
	data, err := NewService(fakeRules{}, nil, quiet()).RulesXLSX(context.Background())
	require.NoError(t, err)

	rows, err := open(t, data).GetRows("Rules")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRulesXLSX_SourceError(t *testing.T) {
	_, err := NewService(fakeRules{err: errors.New("db down")}, nil, quiet()).RulesXLSX(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestBacklogXLSX(t *testing.T) {
	age := 42 * time.Minute
	snap := entity.BacklogSnapshot{
		TakenAt:                 t0,
		Receipts:                map[constants.ReceiptStatus]int{constants.ReceiptStatusPending: 3},
		Jobs:                    map[constants.JobStatus]int{constants.JobStatusProcessing: 1},
		AwaitingReview:          2,
		OldestPendingReceiptAge: &age,
		PendingReceiptAlert:     true,
		HasAlert:                true,
	}

	data, err := NewService(nil, fakeBacklog{snap: snap}, quiet()).BacklogXLSX(context.Background())
	require.NoError(t, err)

	rows, err := open(t, data).GetRows("Backlog")
	require.NoError(t, err)
	values := map[string]string{}
	for _, r := range rows[1:] {
		if len(r) == 2 {
			values[r[0]] = r[1]
		}
	}
	assert.Equal(t, "3", values["Receipts Pending"])
	assert.Equal(t, "0", values["Receipts Failed"])
	assert.Equal(t, "1", values["Jobs Processing"])
	assert.Equal(t, "2", values["Awaiting Review"])
	assert.Equal(t, "42", values["Oldest Pending Receipt (min)"])
	assert.Equal(t, "TRUE", values["Has Alert"])
	assert.NotContains(t, values, "Oldest Pending Job (min)")
}

package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/async"
	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/repository"
)

var t0 = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeNormalizer fails for payloads listed in fail and prefixes the rest.
type fakeNormalizer struct {
	fail  map[string]error
	calls int
}

func (f *fakeNormalizer) Normalize(_ context.Context, data []byte) ([]byte, error) {
	f.calls++
	if err, ok := f.fail[string(data)]; ok {
		return nil, err
	}
	return append([]byte("norm:"), data...), nil
}

type fakeExtractor struct {
	err   error
	conf  float64
	seen  [][]byte
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, image []byte) (string, float64, error) {
	f.calls++
	f.seen = append(f.seen, image)
	if f.err != nil {
		return "", 0, f.err
	}
	return "TEXT " + string(image), f.conf, nil
}

type fixture struct {
	store repository.Store
	db    *repository.DB
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.OpenSQLite("sqlite::memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(testLogger()) })
	require.NoError(t, repository.Migrate(context.Background(), db, testLogger()))
	return &fixture{store: repository.NewStore(db, testLogger()), db: db, now: t0.Add(time.Hour)}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) worker(n Normalizer, e Extractor, opts ...Option) *Worker {
	return NewWorker(f.store, n, e, testLogger(), append([]Option{WithClock(f.clock)}, opts...)...)
}

// upload creates a Pending receipt with payload and enqueues it at createdAt.
func (f *fixture) upload(t *testing.T, payload string, createdAt time.Time) (*entity.Receipt, *entity.ProcessingJob) {
	t.Helper()
	r := &entity.Receipt{
		ImageData:  []byte(payload),
		MimeType:   constants.MimePNG,
		UploadedBy: uuid.New(),
		UploadedAt: createdAt,
		Status:     constants.ReceiptStatusPending,
	}
	q := async.NewQueue(testLogger(), async.WithClock(func() time.Time { return createdAt }))
	var job *entity.ProcessingJob
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		if err := tx.CreateReceipt(context.Background(), r); err != nil {
			return err
		}
		var err error
		job, err = q.Enqueue(context.Background(), tx, r.ID)
		return err
	}))
	return r, job
}

type jobRow struct {
	Status     constants.JobStatus
	RetryCount int
	StartedAt  sql.NullTime
	Completed  sql.NullTime
	Error      sql.NullString
}

func (f *fixture) job(t *testing.T, id uuid.UUID) jobRow {
	t.Helper()
	var row jobRow
	var status string
	err := f.db.SQL.QueryRow(
		`SELECT status, retry_count, started_at, completed_at, error_message FROM processing_jobs WHERE id = ?`, id,
	).Scan(&status, &row.RetryCount, &row.StartedAt, &row.Completed, &row.Error)
	require.NoError(t, err)
	row.Status = constants.JobStatus(status)
	return row
}

func (f *fixture) receipt(t *testing.T, id uuid.UUID) *entity.Receipt {
	t.Helper()
	r, err := f.store.GetReceipt(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) jobCount(t *testing.T, receiptID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.SQL.QueryRow(`SELECT COUNT(*) FROM processing_jobs WHERE receipt_id = ?`, receiptID).Scan(&n))
	return n
}

func TestNormalizePending_ClaimsOldestBatchFirst(t *testing.T) {
	f := newFixture(t)
	_, j1 := f.upload(t, "one", t0)
	_, j2 := f.upload(t, "two", t0.Add(time.Minute))
	_, j3 := f.upload(t, "three", t0.Add(2*time.Minute))

	n := &fakeNormalizer{}
	w := f.worker(n, &fakeExtractor{}, WithBatchSize(2))

	processed, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, constants.JobStatusCompleted, f.job(t, j1.ID).Status)
	assert.Equal(t, constants.JobStatusCompleted, f.job(t, j2.ID).Status)
	assert.Equal(t, constants.JobStatusPending, f.job(t, j3.ID).Status)

	processed, err = w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, constants.JobStatusCompleted, f.job(t, j3.ID).Status)

	processed, err = w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Equal(t, 3, n.calls)
}

func TestNormalizePending_Success(t *testing.T) {
	f := newFixture(t)
	r, j := f.upload(t, "raw", t0)

	processed, err := f.worker(&fakeNormalizer{}, &fakeExtractor{}).NormalizePending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	row := f.job(t, j.ID)
	assert.Equal(t, constants.JobStatusCompleted, row.Status)
	assert.Zero(t, row.RetryCount)
	require.True(t, row.StartedAt.Valid)
	require.True(t, row.Completed.Valid)
	assert.True(t, f.now.Equal(row.StartedAt.Time))
	assert.True(t, f.now.Equal(row.Completed.Time))

	got := f.receipt(t, r.ID)
	assert.Equal(t, constants.ReceiptStatusProcessing, got.Status)
	assert.Equal(t, []byte("norm:raw"), got.NormalizedData)
	assert.Equal(t, []byte("raw"), got.ImageData)
}

func TestNormalizePending_FailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	bad, jBad := f.upload(t, "corrupt", t0)
	good, jGood := f.upload(t, "fine", t0.Add(time.Second))

	n := &fakeNormalizer{fail: map[string]error{"corrupt": errors.New("no decode delegate")}}
	processed, err := f.worker(n, &fakeExtractor{}).NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	badRow := f.job(t, jBad.ID)
	assert.Equal(t, constants.JobStatusFailed, badRow.Status)
	assert.Equal(t, 1, badRow.RetryCount)
	assert.True(t, badRow.Completed.Valid)
	assert.Equal(t, "no decode delegate", badRow.Error.String)
	assert.Equal(t, constants.ReceiptStatusFailed, f.receipt(t, bad.ID).Status)

	assert.Equal(t, constants.JobStatusCompleted, f.job(t, jGood.ID).Status)
	assert.Equal(t, constants.ReceiptStatusProcessing, f.receipt(t, good.ID).Status)

	// no automatic retry without a retrier
	assert.Equal(t, 1, f.jobCount(t, bad.ID))
}

func TestNormalizePending_MissingReceipt(t *testing.T) {
	f := newFixture(t)
	orphan := entity.NewProcessingJob(uuid.New(), t0)

	_, err := f.db.SQL.Exec(`PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertJob(context.Background(), orphan)
	}))
	_, err = f.db.SQL.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	n := &fakeNormalizer{}
	processed, err := f.worker(n, &fakeExtractor{}).NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Zero(t, n.calls)

	row := f.job(t, orphan.ID)
	assert.Equal(t, constants.JobStatusFailed, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Equal(t, "receipt not found", row.Error.String)
}

func TestNormalizePending_CancelledLeavesJobPending(t *testing.T) {
	f := newFixture(t)
	r, j := f.upload(t, "raw", t0)

	ctx, cancel := context.WithCancel(context.Background())
	n := &cancellingNormalizer{cancel: cancel}
	_, err := f.worker(n, &fakeExtractor{}).NormalizePending(ctx)
	require.Error(t, err)

	assert.Equal(t, constants.JobStatusPending, f.job(t, j.ID).Status)
	assert.Equal(t, constants.ReceiptStatusPending, f.receipt(t, r.ID).Status)
}

type cancellingNormalizer struct{ cancel context.CancelFunc }

func (c *cancellingNormalizer) Normalize(ctx context.Context, _ []byte) ([]byte, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestNormalizePending_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "raw", t0)
	require.NoError(t, f.db.SQL.Close())

	_, err := f.worker(&fakeNormalizer{}, &fakeExtractor{}).NormalizePending(context.Background())
	assert.Error(t, err)
}

func TestNormalizePending_NotYetAvailable(t *testing.T) {
	f := newFixture(t)
	r, _ := f.upload(t, "raw", t0)
	delayed := entity.NewProcessingJob(r.ID, t0)
	delayed.AvailableAt = f.now.Add(time.Minute)
	require.NoError(t, f.store.InTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertJob(context.Background(), delayed)
	}))

	processed, err := f.worker(&fakeNormalizer{}, &fakeExtractor{}, WithBatchSize(10)).NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, constants.JobStatusPending, f.job(t, delayed.ID).Status)
}

func TestExtractNormalized_NothingBeforeStageA(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "raw", t0)

	e := &fakeExtractor{}
	processed, err := f.worker(&fakeNormalizer{}, e).ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Zero(t, e.calls)
}

func TestTwoTickScenario(t *testing.T) {
	f := newFixture(t)
	r, j := f.upload(t, "raw", t0)
	e := &fakeExtractor{conf: 0.83}
	w := f.worker(&fakeNormalizer{}, e)

	// tick 1
	a, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	b, err := w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	got := f.receipt(t, r.ID)
	assert.Equal(t, constants.ReceiptStatusCompleted, got.Status)
	require.NotNil(t, got.OCRText)
	assert.Equal(t, "TEXT norm:raw", *got.OCRText)
	require.NotNil(t, got.OCRConfidence)
	assert.InDelta(t, 0.83, *got.OCRConfidence, 1e-9)
	assert.Equal(t, [][]byte{[]byte("norm:raw")}, e.seen)
	assert.Equal(t, constants.JobStatusCompleted, f.job(t, j.ID).Status)

	// nothing left for either stage
	a, err = w.NormalizePending(context.Background())
	require.NoError(t, err)
	b, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, a+b)
}

func TestExtractNormalized_ConfidencePassesThrough(t *testing.T) {
	f := newFixture(t)
	r, _ := f.upload(t, "raw", t0)
	w := f.worker(&fakeNormalizer{}, &fakeExtractor{conf: 1.7})

	_, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	_, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)

	got := f.receipt(t, r.ID)
	require.NotNil(t, got.OCRConfidence)
	assert.InDelta(t, 1.7, *got.OCRConfidence, 1e-9)
}

func TestExtractNormalized_FailureKeepsJobCompleted(t *testing.T) {
	f := newFixture(t)
	r, j := f.upload(t, "raw", t0)
	w := f.worker(&fakeNormalizer{}, &fakeExtractor{err: errors.New("tesseract: exit status 1")})

	_, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	processed, err := w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	row := f.job(t, j.ID)
	assert.Equal(t, constants.JobStatusCompleted, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.Equal(t, "tesseract: exit status 1", row.Error.String)

	got := f.receipt(t, r.ID)
	assert.Equal(t, constants.ReceiptStatusFailed, got.Status)
	assert.Nil(t, got.OCRText)

	// a Failed receipt is never selected by Stage B again
	processed, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestExtractNormalized_OrdersByCompletion(t *testing.T) {
	f := newFixture(t)
	r1, _ := f.upload(t, "first", t0)
	r2, _ := f.upload(t, "second", t0.Add(time.Minute))
	w := f.worker(&fakeNormalizer{}, &fakeExtractor{}, WithBatchSize(1))

	// r1 completes Stage A before r2
	_, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = w.NormalizePending(context.Background())
	require.NoError(t, err)

	_, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.ReceiptStatusCompleted, f.receipt(t, r1.ID).Status)
	assert.Equal(t, constants.ReceiptStatusProcessing, f.receipt(t, r2.ID).Status)
}

func TestRetryPolicy_ReenqueuesWithBackoff(t *testing.T) {
	f := newFixture(t)
	r, j := f.upload(t, "corrupt", t0)

	q := async.NewQueue(testLogger(),
		async.WithClock(f.clock),
		async.WithRetryPolicy(async.RetryPolicy{MaxAttempts: 2, BaseDelay: 10 * time.Minute}),
	)
	n := &fakeNormalizer{fail: map[string]error{"corrupt": errors.New("bad image")}}
	w := f.worker(n, &fakeExtractor{}, WithRetrier(q))

	_, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, f.job(t, j.ID).Status)
	assert.Equal(t, constants.ReceiptStatusFailed, f.receipt(t, r.ID).Status)
	assert.Equal(t, 2, f.jobCount(t, r.ID))

	// backoff not elapsed
	processed, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)

	f.now = f.now.Add(10 * time.Minute)
	processed, err = w.NormalizePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// attempts exhausted
	assert.Equal(t, 2, f.jobCount(t, r.ID))
	assert.Equal(t, 2, n.calls)
}

func TestRetryPolicy_ExtractFailureRetriesFromStageA(t *testing.T) {
	f := newFixture(t)
	r, _ := f.upload(t, "raw", t0)

	q := async.NewQueue(testLogger(),
		async.WithClock(f.clock),
		async.WithRetryPolicy(async.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute}),
	)
	e := &fakeExtractor{err: errors.New("timeout")}
	w := f.worker(&fakeNormalizer{}, e, WithRetrier(q))

	_, err := w.NormalizePending(context.Background())
	require.NoError(t, err)
	_, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, f.jobCount(t, r.ID))

	e.err = nil
	f.now = f.now.Add(time.Minute)
	_, err = w.NormalizePending(context.Background())
	require.NoError(t, err)
	_, err = w.ExtractNormalized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.ReceiptStatusCompleted, f.receipt(t, r.ID).Status)
}

package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestNewProcessingJob(t *testing.T) {
	rid := uuid.New()
	j := NewProcessingJob(rid, t0)

	assert.NotEqual(t, uuid.Nil, j.ID)
	assert.Equal(t, rid, j.ReceiptID)
	assert.Equal(t, constants.JobStatusPending, j.Status)
	assert.Equal(t, t0, j.CreatedAt)
	assert.Equal(t, t0, j.AvailableAt)
	assert.Zero(t, j.RetryCount)
	assert.Nil(t, j.StartedAt)
	assert.Nil(t, j.CompletedAt)
}

func TestProcessingJob_HappyPath(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)

	require.NoError(t, j.Start(t0.Add(time.Second)))
	assert.Equal(t, constants.JobStatusProcessing, j.Status)
	require.NotNil(t, j.StartedAt)
	assert.Equal(t, t0.Add(time.Second), *j.StartedAt)

	require.NoError(t, j.Complete(t0.Add(2*time.Second)))
	assert.Equal(t, constants.JobStatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.Equal(t, t0.Add(2*time.Second), *j.CompletedAt)
	assert.Zero(t, j.RetryCount)
}

func TestProcessingJob_StartKeepsExistingStartedAt(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)
	earlier := t0.Add(-time.Minute)
	j.StartedAt = &earlier

	require.NoError(t, j.Start(t0))
	assert.Equal(t, earlier, *j.StartedAt)
}

func TestProcessingJob_Fail(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)
	require.NoError(t, j.Start(t0))
	require.NoError(t, j.Fail(t0.Add(time.Second), "magick: exit status 1"))

	assert.Equal(t, constants.JobStatusFailed, j.Status)
	assert.Equal(t, 1, j.RetryCount)
	require.NotNil(t, j.ErrorMessage)
	assert.Equal(t, "magick: exit status 1", *j.ErrorMessage)
	assert.Equal(t, t0.Add(time.Second), *j.CompletedAt)
}

func TestProcessingJob_FailTruncatesMessage(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)
	require.NoError(t, j.Start(t0))
	require.NoError(t, j.Fail(t0, strings.Repeat("x", 5000)))

	assert.Len(t, *j.ErrorMessage, constants.MaxErrorMessageLen)
}

func TestProcessingJob_TerminalStatesNeverChange(t *testing.T) {
	for _, terminal := range []constants.JobStatus{constants.JobStatusCompleted, constants.JobStatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			j := NewProcessingJob(uuid.New(), t0)
			j.Status = terminal

			for _, err := range []error{
				j.Start(t0),
				j.Complete(t0),
				j.Fail(t0, "boom"),
			} {
				require.Error(t, err)
				assert.ErrorIs(t, err, common.ErrInvalidTransition)
			}
			assert.Equal(t, terminal, j.Status)
		})
	}
}

func TestProcessingJob_PendingCannotSkipProcessing(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)

	assert.ErrorIs(t, j.Complete(t0), common.ErrInvalidTransition)
	assert.ErrorIs(t, j.Fail(t0, "x"), common.ErrInvalidTransition)
	assert.Equal(t, constants.JobStatusPending, j.Status)
	assert.Zero(t, j.RetryCount)
}

func TestProcessingJob_RecordExtractFailure(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)
	require.ErrorIs(t, j.RecordExtractFailure("early"), common.ErrInvalidTransition)

	require.NoError(t, j.Start(t0))
	require.NoError(t, j.Complete(t0))
	require.NoError(t, j.RecordExtractFailure("tesseract: no text"))

	assert.Equal(t, constants.JobStatusCompleted, j.Status)
	assert.Equal(t, 1, j.RetryCount)
	assert.Equal(t, "tesseract: no text", *j.ErrorMessage)
}

func TestCanTransition(t *testing.T) {
	all := constants.JobStatuses
	allowed := map[[2]constants.JobStatus]bool{
		{constants.JobStatusPending, constants.JobStatusProcessing}:   true,
		{constants.JobStatusProcessing, constants.JobStatusCompleted}: true,
		{constants.JobStatusProcessing, constants.JobStatusFailed}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]constants.JobStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestInFlightSince(t *testing.T) {
	j := NewProcessingJob(uuid.New(), t0)
	assert.Equal(t, t0, j.InFlightSince())

	started := t0.Add(time.Minute)
	j.StartedAt = &started
	assert.Equal(t, started, j.InFlightSince())
}

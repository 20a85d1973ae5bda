package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
	"github.com/joseph-ayodele/receipts-pipeline/internal/common"
)

// ProcessingJob is one durable unit of pipeline work tied to a receipt.
//
// Status only moves forward: Pending -> Processing -> Completed | Failed.
// Completed means the normalize stage ran; the outcome of text extraction
// lives on the receipt.
type ProcessingJob struct {
	ID           uuid.UUID           `json:"id"`
	ReceiptID    uuid.UUID           `json:"receipt_id"`
	Status       constants.JobStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	AvailableAt  time.Time           `json:"available_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	RetryCount   int                 `json:"retry_count"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}

// NewProcessingJob returns a Pending job for receiptID created at now.
func NewProcessingJob(receiptID uuid.UUID, now time.Time) *ProcessingJob {
	return &ProcessingJob{
		ID:          uuid.New(),
		ReceiptID:   receiptID,
		Status:      constants.JobStatusPending,
		CreatedAt:   now,
		AvailableAt: now,
	}
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to constants.JobStatus) bool {
	switch from {
	case constants.JobStatusPending:
		return to == constants.JobStatusProcessing
	case constants.JobStatusProcessing:
		return to == constants.JobStatusCompleted || to == constants.JobStatusFailed
	default:
		return false
	}
}

func (j *ProcessingJob) transition(to constants.JobStatus) error {
	if !CanTransition(j.Status, to) {
		return common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("job %s: %s -> %s", j.ID, j.Status, to), common.ErrInvalidTransition)
	}
	j.Status = to
	return nil
}

// Start claims the job. StartedAt is kept if already set.
func (j *ProcessingJob) Start(now time.Time) error {
	if err := j.transition(constants.JobStatusProcessing); err != nil {
		return err
	}
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	return nil
}

// Complete finishes the normalize stage.
func (j *ProcessingJob) Complete(now time.Time) error {
	if err := j.transition(constants.JobStatusCompleted); err != nil {
		return err
	}
	j.CompletedAt = &now
	return nil
}

// Fail terminates the job and counts the failure.
func (j *ProcessingJob) Fail(now time.Time, message string) error {
	if err := j.transition(constants.JobStatusFailed); err != nil {
		return err
	}
	j.CompletedAt = &now
	j.RetryCount++
	j.setError(message)
	return nil
}

// RecordExtractFailure counts a text-extraction failure on a job whose
// normalize stage already completed. The status stays Completed.
func (j *ProcessingJob) RecordExtractFailure(message string) error {
	if j.Status != constants.JobStatusCompleted {
		return common.NewAppError("INVALID_TRANSITION",
			fmt.Sprintf("job %s: extract failure recorded in status %s", j.ID, j.Status), common.ErrInvalidTransition)
	}
	j.RetryCount++
	j.setError(message)
	return nil
}

func (j *ProcessingJob) setError(message string) {
	if message == "" {
		return
	}
	if len(message) > constants.MaxErrorMessageLen {
		message = strings.ToValidUTF8(message[:constants.MaxErrorMessageLen], "")
	}
	j.ErrorMessage = &message
}

// InFlightSince is the timestamp used to age a Processing job.
func (j *ProcessingJob) InFlightSince() time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.CreatedAt
}

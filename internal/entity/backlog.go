package entity

import (
	"time"

	"github.com/joseph-ayodele/receipts-pipeline/constants"
)

// BacklogSnapshot is a point-in-time read model of pipeline health. Not persisted.
type BacklogSnapshot struct {
	TakenAt time.Time `json:"taken_at"`

	Receipts       map[constants.ReceiptStatus]int `json:"receipts"`
	Jobs           map[constants.JobStatus]int     `json:"jobs"`
	AwaitingReview int                             `json:"awaiting_review"`

	// Ages are nil when nothing qualifies.
	OldestPendingReceiptAge *time.Duration `json:"oldest_pending_receipt_age,omitempty"`
	OldestPendingJobAge     *time.Duration `json:"oldest_pending_job_age,omitempty"`
	OldestProcessingJobAge  *time.Duration `json:"oldest_processing_job_age,omitempty"`

	PendingReceiptAlert bool `json:"pending_receipt_alert"`
	PendingJobAlert     bool `json:"pending_job_alert"`
	ProcessingJobAlert  bool `json:"processing_job_alert"`
	HasAlert            bool `json:"has_alert"`
}

// FailedReceipts is the count surfaced for receipts the pipeline gave up on.
func (s BacklogSnapshot) FailedReceipts() int {
	return s.Receipts[constants.ReceiptStatusFailed]
}

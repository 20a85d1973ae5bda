package constants

// ReceiptStatus mirrors the pipeline progress of a receipt.
type ReceiptStatus string

// Stable values (store these exact strings in DB).
const (
	ReceiptStatusPending    ReceiptStatus = "Pending"    // uploaded, not yet normalized
	ReceiptStatusProcessing ReceiptStatus = "Processing" // normalized, waiting for text extraction
	ReceiptStatusCompleted  ReceiptStatus = "Completed"  // text extracted, ready for review
	ReceiptStatusFailed     ReceiptStatus = "Failed"     // terminal failure
)

// ReceiptStatuses lists every receipt status in pipeline order.
var ReceiptStatuses = []ReceiptStatus{
	ReceiptStatusPending,
	ReceiptStatusProcessing,
	ReceiptStatusCompleted,
	ReceiptStatusFailed,
}

// JobStatus is the canonical status for rows in processing_jobs.
type JobStatus string

const (
	JobStatusPending    JobStatus = "Pending"
	JobStatusProcessing JobStatus = "Processing"
	JobStatusCompleted  JobStatus = "Completed" // normalize stage ran
	JobStatusFailed     JobStatus = "Failed"
)

// JobStatuses lists every job status in pipeline order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
}

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Strings returns values as plain strings, e.g. for enum validators.
func Strings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

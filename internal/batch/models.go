package batch

import "time"

type BatchStatus string

const (
	BatchStatusPending        BatchStatus = "pending"
	BatchStatusProcessing     BatchStatus = "processing"
	BatchStatusPartialSuccess BatchStatus = "partial_success"
	BatchStatusCompleted      BatchStatus = "completed"
	BatchStatusCancelled      BatchStatus = "cancelled"
)

// Terminal reports whether the batch has finished processing.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusPartialSuccess, BatchStatusCompleted, BatchStatusCancelled:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFailed  ItemStatus = "failed"
)

// Batch is one user-initiated outreach run over N cases.
//
// Counter invariants: ProcessedCases <= TotalCases and
// SuccessfulCases + FailedCases == ProcessedCases at every persisted state,
// so a caller polling mid-run always sees consistent progress.
type Batch struct {
	ID          string
	WorkspaceID string
	Status      BatchStatus

	TotalCases      int
	ProcessedCases  int
	SuccessfulCases int
	FailedCases     int

	EmailScheduleTime time.Time
	CallScheduleTime  time.Time

	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	ErrorSummary []CaseError

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CaseError is one per-case failure recorded in the batch error summary.
type CaseError struct {
	CaseID string `json:"case_id"`
	Error  string `json:"error"`
}

// BatchItem is one case inside a batch. It is created pending and mutated
// exactly once, to success or failed.
type BatchItem struct {
	BatchID      string
	CaseID       string
	Status       ItemStatus
	EmailID      string
	CallID       string
	ErrorMessage string
	ProcessedAt  *time.Time
}

// EligibleCase is a case that passed the selection filter and can be fed to
// ProcessBatch.
type EligibleCase struct {
	CaseID      string
	WorkspaceID string
	Email       string
	Phone       string
}

// Case is a raw candidate row as fetched from the case store, before the
// eligibility filter runs.
type Case struct {
	CaseID         string
	WorkspaceID    string
	BusinessState  string
	Email          string
	Phone          string
	HasActiveEmail bool
	HasActiveCall  bool
}

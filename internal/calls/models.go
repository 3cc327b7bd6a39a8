package calls

import "time"

// CallRecord is the persisted state of one outbound call attempt tied to one case.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Lifecycle: created in queued when first scheduled, then mutated only by the
// lifecycle Service in response to provider webhook events or retry scheduling.
// Rows are never deleted; terminal state is expressed via Status.
//
// Money invariant reminder: CostMinor is whatever the provider reported for the
// attempt, stored in minor currency units. Internal pricing is out of scope.

type CallRecord struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	CaseID      string `json:"case_id" db:"case_id"`

	// ProviderCallID is empty until the provider accepts the call.
	// Unique when present; all webhook handlers locate records by it.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	PhoneNumber string `json:"phone_number" db:"phone_number"`

	Status      CallStatus `json:"status" db:"status"`
	EndedReason string     `json:"ended_reason,omitempty" db:"ended_reason"`

	ScheduledFor time.Time  `json:"scheduled_for" db:"scheduled_for"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is derived from StartedAt/EndedAt when both are known.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	Transcript   string `json:"transcript,omitempty" db:"transcript"`
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	// StructuredData is the provider's structured extraction, flattened by
	// the provider adapter before it reaches this package.
	StructuredData map[string]any `json:"structured_data,omitempty" db:"structured_data"`

	CostMinor int64 `json:"cost_minor" db:"cost_minor"`

	RetryCount  int        `json:"retry_count" db:"retry_count"`
	MaxRetries  int        `json:"max_retries" db:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" db:"next_retry_at"`

	// FinalFailure marks a failed record whose retries are exhausted or whose
	// ended reason is non-retryable. Downstream alerting keys off this flag.
	FinalFailure       bool   `json:"final_failure" db:"final_failure"`
	FinalFailureReason string `json:"final_failure_reason,omitempty" db:"final_failure_reason"`

	// QueueMessageID is the id of the single outstanding delayed job for this
	// record. It is overwritten (never appended) on reschedule so a record can
	// have at most one live queue message.
	QueueMessageID string `json:"queue_message_id,omitempty" db:"queue_message_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusQueued     CallStatus = "queued"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCancelled  CallStatus = "cancelled"
)

// Terminal reports whether no further automatic transition occurs from s
// without a new retry cycle.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusCancelled:
		return true
	}
	return false
}

const DefaultMaxRetries = 3

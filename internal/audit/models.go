package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - Appends are best-effort; never block webhook acks or batch bookkeeping on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	// Lifecycle events produced by webhook processing have no actor.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	CallID  string `json:"call_id,omitempty" db:"call_id"`
	CaseID  string `json:"case_id,omitempty" db:"case_id"`
	BatchID string `json:"batch_id,omitempty" db:"batch_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeCallFinalFailure fires when a call record fails terminally
	// (retries exhausted or a non-retryable ended reason).
	EventTypeCallFinalFailure EventType = "call_final_failure"

	// EventTypeBatchTerminal fires once per batch when it reaches a terminal
	// status (completed, partial_success, or cancelled).
	EventTypeBatchTerminal EventType = "batch_terminal"

	EventTypeAdminAction EventType = "admin_action"
)

package calls

import "time"

// Webhook event inputs, already converted from the provider wire format by
// the provider adapter. The lifecycle Service consumes only these shapes.

// StatusUpdateEvent carries a non-terminal provider status transition.
type StatusUpdateEvent struct {
	ProviderCallID string
	ProviderStatus string
	StartedAt      *time.Time
}

// EndOfCallReportEvent is the authoritative terminal event for a call.
type EndOfCallReportEvent struct {
	ProviderCallID string
	EndedReason    string
	StartedAt      *time.Time
	EndedAt        *time.Time
	Costs          []CostEntry
	Transcript     string
	RecordingURL   string

	// StructuredData is the normalized (flattened) structured output.
	StructuredData map[string]any
}

// HangEvent signals a dropped call. It is a lightweight hint only; terminal
// classification and retry decisions belong to the end-of-call report.
type HangEvent struct {
	ProviderCallID string
	EndedReason    string
	EndedAt        *time.Time
}

// CostEntry is one line of the provider's per-call cost breakdown.
type CostEntry struct {
	AmountMinor int64
	Description string
}

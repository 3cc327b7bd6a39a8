package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call-outcome metrics.
// Workspace isolation: WorkspaceID is required.

type CallsSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type CallsSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalCalls      int `json:"total_calls"`
	QueuedCalls     int `json:"queued_calls"`
	RingingCalls    int `json:"ringing_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	CancelledCalls  int `json:"cancelled_calls"`

	RetriedCalls  int `json:"retried_calls"`
	FinalFailures int `json:"final_failures"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
}

// SpendSummaryRequest requests aggregated provider spend.
// Spend is derived from CostMinor on terminal call records.

type SpendSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type SpendSummary struct {
	WorkspaceID string `json:"workspace_id"`

	TotalSpendMinor  int64 `json:"total_spend_minor"`
	BilledCalls      int   `json:"billed_calls"`
	AverageCostMinor int64 `json:"average_cost_minor"`

	CompletedSpendMinor int64 `json:"completed_spend_minor"`
	FailedSpendMinor    int64 `json:"failed_spend_minor"`
}

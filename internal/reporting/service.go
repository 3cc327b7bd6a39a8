package reporting

import (
	"context"
	"errors"
	"time"

	"outreach-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// CallSource abstracts call-record access for reporting. Implementations must
// enforce workspace filtering; calls.MemoryRepo and calls.PostgresRepo both
// satisfy it.
type CallSource interface {
	ListByWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]calls.CallRecord, error)
}

type Service struct {
	source CallSource
}

func NewService(source CallSource) *Service { return &Service{source: source} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	rows, err := s.listCalls(ctx, req.WorkspaceID, req.Range)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{WorkspaceID: req.WorkspaceID}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.RetryCount > 0 {
			out.RetriedCalls++
		}
		if c.FinalFailure {
			out.FinalFailures++
		}
		switch c.Status {
		case calls.CallStatusQueued:
			out.QueuedCalls++
		case calls.CallStatusRinging:
			out.RingingCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusCancelled:
			out.CancelledCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, req SpendSummaryRequest) (SpendSummary, error) {
	rows, err := s.listCalls(ctx, req.WorkspaceID, req.Range)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{WorkspaceID: req.WorkspaceID}
	for _, c := range rows {
		if c.CostMinor == 0 {
			continue
		}
		out.TotalSpendMinor += c.CostMinor
		out.BilledCalls++
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedSpendMinor += c.CostMinor
		case calls.CallStatusFailed:
			out.FailedSpendMinor += c.CostMinor
		}
	}
	if out.BilledCalls > 0 {
		out.AverageCostMinor = out.TotalSpendMinor / int64(out.BilledCalls)
	}
	return out, nil
}

func (s *Service) listCalls(ctx context.Context, workspaceID string, rng TimeRange) ([]calls.CallRecord, error) {
	if workspaceID == "" {
		return nil, ErrInvalidRequest
	}
	if rng.From.IsZero() || rng.To.IsZero() || !rng.To.After(rng.From) {
		return nil, ErrInvalidRequest
	}
	if s.source == nil {
		return nil, errors.New("reporting: call source not configured")
	}
	return s.source.ListByWorkspace(ctx, workspaceID, rng.From, rng.To)
}

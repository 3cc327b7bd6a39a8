package reporting

import (
	"context"
	"testing"
	"time"

	"outreach-platform/internal/calls"
)

func seedCalls(t *testing.T, repo *calls.MemoryRepo, recs ...calls.CallRecord) {
	t.Helper()
	for _, rec := range recs {
		if _, err := repo.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed call %s: %v", rec.ID, err)
		}
	}
}

func TestCallsSummary_WorkspaceIsolation(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seedCalls(t, repo,
		calls.CallRecord{ID: "c1", WorkspaceID: "w1", Status: calls.CallStatusCompleted, DurationSeconds: 30, CreatedAt: now},
		calls.CallRecord{ID: "c2", WorkspaceID: "w2", Status: calls.CallStatusCompleted, DurationSeconds: 50, CreatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		WorkspaceID: "w1",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
	if out.AverageDurationSeconds != 30 {
		t.Fatalf("expected avg duration 30, got %d", out.AverageDurationSeconds)
	}
}

func TestCallsSummary_CountsOutcomesAndRetries(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seedCalls(t, repo,
		calls.CallRecord{ID: "c1", WorkspaceID: "w", Status: calls.CallStatusCompleted, DurationSeconds: 60, RecordingURL: "https://rec/1", CreatedAt: now},
		calls.CallRecord{ID: "c2", WorkspaceID: "w", Status: calls.CallStatusCompleted, DurationSeconds: 30, RetryCount: 1, CreatedAt: now},
		calls.CallRecord{ID: "c3", WorkspaceID: "w", Status: calls.CallStatusFailed, RetryCount: 3, FinalFailure: true, CreatedAt: now},
		calls.CallRecord{ID: "c4", WorkspaceID: "w", Status: calls.CallStatusQueued, CreatedAt: now},
		calls.CallRecord{ID: "c5", WorkspaceID: "w", Status: calls.CallStatusCancelled, CreatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		WorkspaceID: "w",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 5 || out.CompletedCalls != 2 || out.FailedCalls != 1 || out.QueuedCalls != 1 || out.CancelledCalls != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.RetriedCalls != 2 {
		t.Fatalf("expected 2 retried calls, got %d", out.RetriedCalls)
	}
	if out.FinalFailures != 1 {
		t.Fatalf("expected 1 final failure, got %d", out.FinalFailures)
	}
	if out.RecordedCalls != 1 {
		t.Fatalf("expected 1 recorded call, got %d", out.RecordedCalls)
	}
	if out.AverageDurationSeconds != 18 {
		t.Fatalf("expected avg duration 18, got %d", out.AverageDurationSeconds)
	}
}

func TestSpendSummary_Aggregates(t *testing.T) {
	repo := calls.NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	seedCalls(t, repo,
		calls.CallRecord{ID: "c1", WorkspaceID: "w", Status: calls.CallStatusCompleted, CostMinor: 250, CreatedAt: now},
		calls.CallRecord{ID: "c2", WorkspaceID: "w", Status: calls.CallStatusFailed, CostMinor: 50, CreatedAt: now},
		calls.CallRecord{ID: "c3", WorkspaceID: "w", Status: calls.CallStatusQueued, CreatedAt: now},
	)
	svc := NewService(repo)

	out, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		WorkspaceID: "w",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalSpendMinor != 300 || out.BilledCalls != 2 {
		t.Fatalf("unexpected spend summary: %+v", out)
	}
	if out.CompletedSpendMinor != 250 || out.FailedSpendMinor != 50 {
		t.Fatalf("unexpected spend split: %+v", out)
	}
	if out.AverageCostMinor != 150 {
		t.Fatalf("expected avg cost 150, got %d", out.AverageCostMinor)
	}
}

func TestReporting_RejectsBadRequests(t *testing.T) {
	svc := NewService(calls.NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		Range: TimeRange{From: now, To: now.Add(time.Hour)},
	}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for missing workspace, got %v", err)
	}
	if _, err := svc.SpendSummary(context.Background(), SpendSummaryRequest{
		WorkspaceID: "w",
		Range:       TimeRange{From: now, To: now},
	}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}

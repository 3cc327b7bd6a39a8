package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeOrchestrator struct {
	mu      sync.Mutex
	emailAt map[string]time.Time
	callAt  map[string]time.Time
	failFor map[string]error
	onCase  func(caseID string)
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{
		emailAt: map[string]time.Time{},
		callAt:  map[string]time.Time{},
		failFor: map[string]error{},
	}
}

func (f *fakeOrchestrator) ScheduleOutreach(ctx context.Context, c EligibleCase, emailAt, callAt time.Time) (Outcome, error) {
	f.mu.Lock()
	f.emailAt[c.CaseID] = emailAt
	f.callAt[c.CaseID] = callAt
	err := f.failFor[c.CaseID]
	hook := f.onCase
	f.mu.Unlock()

	if hook != nil {
		hook(c.CaseID)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{EmailID: "em-" + c.CaseID, CallID: "call-" + c.CaseID}, nil
}

func (f *fakeOrchestrator) seen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.callAt)
}

func makeCases(n int) []EligibleCase {
	out := make([]EligibleCase, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, EligibleCase{
			CaseID:      fmt.Sprintf("case-%d", i),
			WorkspaceID: "ws-1",
			Email:       fmt.Sprintf("c%d@example.com", i),
			Phone:       fmt.Sprintf("+1555000%04d", i),
		})
	}
	return out
}

func startTestBatch(t *testing.T, p *Processor, cases []EligibleCase) (Batch, Options) {
	t.Helper()
	emailBase := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	callBase := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	b, err := p.StartBatch(context.Background(), "ws-1", cases, emailBase, callBase)
	if err != nil {
		t.Fatalf("start batch: %v", err)
	}
	return b, Options{
		BatchID:           b.ID,
		EmailScheduleTime: emailBase,
		CallScheduleTime:  callBase,
		ChunkSize:         10,
	}
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	repo := NewMemoryRepo()
	orch := newFakeOrchestrator()
	p := NewProcessor(repo, orch, &MemoryCaseSource{})
	cases := makeCases(4)
	b, opts := startTestBatch(t, p, cases)

	res, err := p.ProcessBatch(context.Background(), cases, opts)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if res.Status != BatchStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if res.Processed != 4 || res.Successful != 4 || res.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	stored, err := repo.GetBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if stored.CompletedAt == nil {
		t.Fatal("expected completedAt set")
	}
	if stored.SuccessfulCases+stored.FailedCases != stored.ProcessedCases {
		t.Fatalf("counter invariant broken: %+v", stored)
	}

	items, err := repo.ListItems(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	for _, it := range items {
		if it.Status != ItemStatusSuccess {
			t.Fatalf("item %s expected success, got %s", it.CaseID, it.Status)
		}
		if it.CallID == "" || it.EmailID == "" {
			t.Fatalf("item %s missing scheduled ids: %+v", it.CaseID, it)
		}
		if it.ProcessedAt == nil {
			t.Fatalf("item %s missing processedAt", it.CaseID)
		}
	}
}

func TestProcessBatch_PerCaseFailureDoesNotAbort(t *testing.T) {
	repo := NewMemoryRepo()
	orch := newFakeOrchestrator()
	orch.failFor["case-1"] = fmt.Errorf("no valid phone number")
	p := NewProcessor(repo, orch, &MemoryCaseSource{})
	cases := makeCases(3)
	b, opts := startTestBatch(t, p, cases)

	res, err := p.ProcessBatch(context.Background(), cases, opts)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if res.Status != BatchStatusPartialSuccess {
		t.Fatalf("expected partial_success, got %s", res.Status)
	}
	if res.Processed != 3 || res.Successful != 2 || res.Failed != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].CaseID != "case-1" {
		t.Fatalf("unexpected error summary: %+v", res.Errors)
	}

	items, err := repo.ListItems(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	for _, it := range items {
		if it.CaseID == "case-1" {
			if it.Status != ItemStatusFailed || it.ErrorMessage == "" {
				t.Fatalf("expected failed item with message, got %+v", it)
			}
		} else if it.Status != ItemStatusSuccess {
			t.Fatalf("sibling case %s must not be aborted, got %s", it.CaseID, it.Status)
		}
	}
}

func TestProcessBatch_StaggersByGlobalIndex(t *testing.T) {
	repo := NewMemoryRepo()
	orch := newFakeOrchestrator()
	p := NewProcessor(repo, orch, &MemoryCaseSource{})
	cases := makeCases(12)
	_, opts := startTestBatch(t, p, cases)

	if _, err := p.ProcessBatch(context.Background(), cases, opts); err != nil {
		t.Fatalf("process batch: %v", err)
	}

	// Case index 11 sits in the second chunk; its offsets still use the
	// global index.
	wantCall := opts.CallScheduleTime.Add(22 * time.Minute)
	wantEmail := opts.EmailScheduleTime.Add(220 * time.Second)
	if got := orch.callAt["case-11"]; !got.Equal(wantCall) {
		t.Fatalf("case 11 call time = %v, want %v", got, wantCall)
	}
	if got := orch.emailAt["case-11"]; !got.Equal(wantEmail) {
		t.Fatalf("case 11 email time = %v, want %v", got, wantEmail)
	}
	if got := orch.callAt["case-0"]; !got.Equal(opts.CallScheduleTime) {
		t.Fatalf("case 0 call time = %v, want unshifted base", got)
	}
}

func TestProcessBatch_CancelStopsAtChunkBoundary(t *testing.T) {
	repo := NewMemoryRepo()
	orch := newFakeOrchestrator()
	p := NewProcessor(repo, orch, &MemoryCaseSource{})
	cases := makeCases(6)
	b, opts := startTestBatch(t, p, cases)
	opts.ChunkSize = 2

	// Flip the flag while chunk 1 is in flight; its cases still finish,
	// chunk 2 never starts.
	orch.onCase = func(string) { p.CancelProcessing(b.ID) }

	res, err := p.ProcessBatch(context.Background(), cases, opts)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if res.Status != BatchStatusCancelled {
		t.Fatalf("expected cancelled, got %s", res.Status)
	}
	if res.Processed != 2 {
		t.Fatalf("expected exactly first chunk processed, got %d", res.Processed)
	}
	if res.Processed >= res.Total {
		t.Fatalf("cancellation must leave work unprocessed: %+v", res)
	}
	if res.Successful+res.Failed != res.Processed {
		t.Fatalf("counter invariant broken: %+v", res)
	}
	if orch.seen() != 2 {
		t.Fatalf("expected 2 orchestrations, got %d", orch.seen())
	}

	stored, err := repo.GetBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if stored.CancelledAt == nil {
		t.Fatal("expected cancelledAt set")
	}
}

func TestProcessBatch_PanicConvertedToFailure(t *testing.T) {
	repo := NewMemoryRepo()
	orch := newFakeOrchestrator()
	orch.onCase = func(caseID string) {
		if caseID == "case-0" {
			panic("orchestrator blew up")
		}
	}
	p := NewProcessor(repo, orch, &MemoryCaseSource{})
	cases := makeCases(2)
	_, opts := startTestBatch(t, p, cases)

	res, err := p.ProcessBatch(context.Background(), cases, opts)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if res.Status != BatchStatusPartialSuccess {
		t.Fatalf("expected partial_success, got %s", res.Status)
	}
	if res.Failed != 1 || res.Successful != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
}

func TestStartBatch_CreatesPendingItems(t *testing.T) {
	repo := NewMemoryRepo()
	p := NewProcessor(repo, newFakeOrchestrator(), &MemoryCaseSource{})
	cases := makeCases(3)
	b, _ := startTestBatch(t, p, cases)

	if b.Status != BatchStatusPending || b.TotalCases != 3 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	items, err := repo.ListItems(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status != ItemStatusPending {
			t.Fatalf("expected pending item, got %s", it.Status)
		}
	}
}

func TestProcessBatch_UnknownBatch(t *testing.T) {
	p := NewProcessor(NewMemoryRepo(), newFakeOrchestrator(), &MemoryCaseSource{})
	_, err := p.ProcessBatch(context.Background(), makeCases(1), Options{BatchID: "missing"})
	if err == nil {
		t.Fatal("expected error for unknown batch")
	}
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("batch: not found")
	ErrInvalidRequest = errors.New("batch: invalid request")
)

// Repository is the persistence contract for batches and their items.
type Repository interface {
	CreateBatch(ctx context.Context, b Batch) (Batch, error)
	GetBatch(ctx context.Context, id string) (Batch, error)
	UpdateBatch(ctx context.Context, b Batch) error
	CreateItems(ctx context.Context, items []BatchItem) error
	UpdateItem(ctx context.Context, item BatchItem) error
	ListItems(ctx context.Context, batchID string) ([]BatchItem, error)
}

// Orchestrator converts one eligible case into scheduled outreach (email
// and/or call) at the given target times. The processor treats it as an
// opaque call: any error is recorded on the item and never aborts siblings.
type Orchestrator interface {
	ScheduleOutreach(ctx context.Context, c EligibleCase, emailAt, callAt time.Time) (Outcome, error)
}

// Outcome is what a successful per-case orchestration produced.
type Outcome struct {
	EmailID string
	CallID  string
}

// TerminalRecorder receives batch terminal-state notifications. Best-effort.
type TerminalRecorder interface {
	LogBatchTerminal(ctx context.Context, workspaceID, batchID, status, metadata string) error
}

// Options tunes one ProcessBatch run.
type Options struct {
	BatchID           string
	EmailScheduleTime time.Time
	CallScheduleTime  time.Time
	// ChunkSize bounds in-flight cases; 0 means the default of 10.
	ChunkSize int
}

const DefaultChunkSize = 10

// Result is the aggregate outcome of one ProcessBatch run.
type Result struct {
	BatchID    string
	Status     BatchStatus
	Total      int
	Processed  int
	Successful int
	Failed     int
	Errors     []CaseError
}

// Processor fans a set of eligible cases out to the Orchestrator in
// fixed-size chunks. Chunks run strictly sequentially; cases within a chunk
// run concurrently and the processor waits for every outcome before the next
// chunk starts. Cancellation is cooperative, checked at chunk boundaries
// only, so in-flight cases always finish.
type Processor struct {
	repo  Repository
	orch  Orchestrator
	cases CaseSource
	audit TerminalRecorder

	emailStep time.Duration
	callStep  time.Duration
	clock     func() time.Time
	log       *slog.Logger

	mu        sync.Mutex
	cancelled map[string]bool
}

func NewProcessor(repo Repository, orch Orchestrator, cases CaseSource) *Processor {
	return &Processor{
		repo:      repo,
		orch:      orch,
		cases:     cases,
		emailStep: 20 * time.Second,
		callStep:  2 * time.Minute,
		clock:     time.Now,
		log:       slog.Default(),
		cancelled: map[string]bool{},
	}
}

// WithAudit attaches a terminal-state recorder.
func (p *Processor) WithAudit(r TerminalRecorder) *Processor {
	p.audit = r
	return p
}

// WithLogger overrides the default logger.
func (p *Processor) WithLogger(l *slog.Logger) *Processor {
	if l != nil {
		p.log = l
	}
	return p
}

// WithStagger overrides the per-case schedule offsets (config-driven).
func (p *Processor) WithStagger(emailStep, callStep time.Duration) *Processor {
	if emailStep > 0 {
		p.emailStep = emailStep
	}
	if callStep > 0 {
		p.callStep = callStep
	}
	return p
}

// StartBatch persists a new pending batch with one pending item per case.
func (p *Processor) StartBatch(ctx context.Context, workspaceID string, cases []EligibleCase, emailAt, callAt time.Time) (Batch, error) {
	if workspaceID == "" || len(cases) == 0 {
		return Batch{}, ErrInvalidRequest
	}
	if emailAt.IsZero() || callAt.IsZero() {
		return Batch{}, ErrInvalidRequest
	}

	now := p.clock().UTC()
	b := Batch{
		ID:                uuid.NewString(),
		WorkspaceID:       workspaceID,
		Status:            BatchStatusPending,
		TotalCases:        len(cases),
		EmailScheduleTime: emailAt,
		CallScheduleTime:  callAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	b, err := p.repo.CreateBatch(ctx, b)
	if err != nil {
		return Batch{}, fmt.Errorf("create batch: %w", err)
	}

	items := make([]BatchItem, 0, len(cases))
	for _, c := range cases {
		items = append(items, BatchItem{
			BatchID: b.ID,
			CaseID:  c.CaseID,
			Status:  ItemStatusPending,
		})
	}
	if err := p.repo.CreateItems(ctx, items); err != nil {
		return Batch{}, fmt.Errorf("create batch items: %w", err)
	}
	return b, nil
}

// CancelProcessing requests cooperative cancellation of a running batch. The
// flag is observed at the next chunk boundary; in-flight cases finish.
func (p *Processor) CancelProcessing(batchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled[batchID] = true
}

func (p *Processor) isCancelled(batchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled[batchID]
}

func (p *Processor) clearCancel(batchID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancelled, batchID)
}

// caseResult is one settled case, folded into batch state after the chunk
// barrier.
type caseResult struct {
	caseID  string
	outcome Outcome
	err     error
}

// ProcessBatch runs the orchestration over cases. Per-case failures are
// recorded and never abort the run; only bookkeeping write errors propagate.
func (p *Processor) ProcessBatch(ctx context.Context, cases []EligibleCase, opts Options) (Result, error) {
	if opts.BatchID == "" {
		return Result{}, ErrInvalidRequest
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	defer p.clearCancel(opts.BatchID)

	b, err := p.repo.GetBatch(ctx, opts.BatchID)
	if err != nil {
		return Result{}, fmt.Errorf("load batch: %w", err)
	}

	now := p.clock().UTC()
	b.Status = BatchStatusProcessing
	b.StartedAt = &now
	b.UpdatedAt = now
	if err := p.repo.UpdateBatch(ctx, b); err != nil {
		return Result{}, fmt.Errorf("mark batch processing: %w", err)
	}
	p.log.Info("batch processing started",
		"batch_id", b.ID, "workspace_id", b.WorkspaceID, "total_cases", len(cases), "chunk_size", chunkSize)

	wasCancelled := false
	for start := 0; start < len(cases); start += chunkSize {
		if p.isCancelled(opts.BatchID) {
			wasCancelled = true
			break
		}
		end := start + chunkSize
		if end > len(cases) {
			end = len(cases)
		}
		chunk := cases[start:end]

		results := make([]caseResult, len(chunk))
		var wg sync.WaitGroup
		for i, c := range chunk {
			globalIdx := start + i
			wg.Add(1)
			go func(slot int, c EligibleCase, idx int) {
				defer wg.Done()
				results[slot] = p.processCase(ctx, c, opts, idx)
			}(i, c, globalIdx)
		}
		wg.Wait()

		// Fold settled results sequentially so counter updates never
		// interleave.
		for _, res := range results {
			if err := p.recordCaseResult(ctx, &b, res); err != nil {
				return Result{}, err
			}
		}
	}

	return p.finish(ctx, &b, wasCancelled)
}

// processCase orchestrates one case with staggered target times. Panics and
// errors are both converted into a recorded failure.
func (p *Processor) processCase(ctx context.Context, c EligibleCase, opts Options, idx int) (res caseResult) {
	res.caseID = c.CaseID
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("orchestration panic: %v", r)
		}
	}()

	emailAt := opts.EmailScheduleTime.Add(time.Duration(idx) * p.emailStep)
	callAt := opts.CallScheduleTime.Add(time.Duration(idx) * p.callStep)

	out, err := p.orch.ScheduleOutreach(ctx, c, emailAt, callAt)
	if err != nil {
		res.err = err
		return res
	}
	res.outcome = out
	return res
}

// recordCaseResult writes the item outcome and republishes batch counters.
// A write failure here is the one unrecoverable error of a run.
func (p *Processor) recordCaseResult(ctx context.Context, b *Batch, res caseResult) error {
	now := p.clock().UTC()
	item := BatchItem{
		BatchID:     b.ID,
		CaseID:      res.caseID,
		ProcessedAt: &now,
	}

	b.ProcessedCases++
	if res.err != nil {
		b.FailedCases++
		b.ErrorSummary = append(b.ErrorSummary, CaseError{CaseID: res.caseID, Error: res.err.Error()})
		item.Status = ItemStatusFailed
		item.ErrorMessage = res.err.Error()
		p.log.Warn("case orchestration failed", "batch_id", b.ID, "case_id", res.caseID, "error", res.err)
	} else {
		b.SuccessfulCases++
		item.Status = ItemStatusSuccess
		item.EmailID = res.outcome.EmailID
		item.CallID = res.outcome.CallID
	}

	if err := p.repo.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("update batch item %s/%s: %w", b.ID, res.caseID, err)
	}
	b.UpdatedAt = now
	if err := p.repo.UpdateBatch(ctx, *b); err != nil {
		return fmt.Errorf("update batch counters %s: %w", b.ID, err)
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, b *Batch, wasCancelled bool) (Result, error) {
	now := p.clock().UTC()
	switch {
	case wasCancelled:
		b.Status = BatchStatusCancelled
		b.CancelledAt = &now
	case b.FailedCases > 0:
		b.Status = BatchStatusPartialSuccess
		b.CompletedAt = &now
	default:
		b.Status = BatchStatusCompleted
		b.CompletedAt = &now
	}
	b.UpdatedAt = now
	if err := p.repo.UpdateBatch(ctx, *b); err != nil {
		return Result{}, fmt.Errorf("finalize batch %s: %w", b.ID, err)
	}

	p.log.Info("batch finished",
		"batch_id", b.ID, "status", string(b.Status),
		"processed", b.ProcessedCases, "successful", b.SuccessfulCases, "failed", b.FailedCases)

	if p.audit != nil {
		meta := fmt.Sprintf("processed=%d successful=%d failed=%d", b.ProcessedCases, b.SuccessfulCases, b.FailedCases)
		if err := p.audit.LogBatchTerminal(ctx, b.WorkspaceID, b.ID, string(b.Status), meta); err != nil {
			p.log.Warn("batch audit append failed", "batch_id", b.ID, "error", err)
		}
	}

	return Result{
		BatchID:    b.ID,
		Status:     b.Status,
		Total:      b.TotalCases,
		Processed:  b.ProcessedCases,
		Successful: b.SuccessfulCases,
		Failed:     b.FailedCases,
		Errors:     b.ErrorSummary,
	}, nil
}

// GetBatch loads one batch with its items for API polling. Workspace checks
// belong to the caller.
func (p *Processor) GetBatch(ctx context.Context, id string) (Batch, []BatchItem, error) {
	if id == "" {
		return Batch{}, nil, ErrInvalidRequest
	}
	b, err := p.repo.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, nil, err
	}
	items, err := p.repo.ListItems(ctx, id)
	if err != nil {
		return Batch{}, nil, err
	}
	return b, items, nil
}

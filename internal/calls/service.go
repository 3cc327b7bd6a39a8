package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("calls: record not found")
	ErrInvalidRequest = errors.New("calls: invalid request")
)

// Repository is the persistence contract for call records.
//
// The only database-level constraint this package assumes is uniqueness of
// provider_call_id when present.
type Repository interface {
	Create(ctx context.Context, rec CallRecord) (CallRecord, error)
	GetByID(ctx context.Context, id string) (CallRecord, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error)
	Update(ctx context.Context, rec CallRecord) error
	ListByWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]CallRecord, error)
}

// Scheduler is the delayed-job collaborator. Schedule must reject fireAt in
// the past. The returned job id is persisted as the record's QueueMessageID.
type Scheduler interface {
	Schedule(ctx context.Context, recordID string, fireAt time.Time) (string, error)
}

// FailureRecorder receives final-failure notifications for downstream
// alerting. Implementations must be best-effort; errors are logged, never
// allowed to block webhook acknowledgement.
type FailureRecorder interface {
	RecordFinalFailure(ctx context.Context, rec CallRecord)
}

// Service is the call lifecycle manager. It applies the state machine to
// inbound webhook events and owns retry scheduling.
//
// Known staleness window: a status-update arriving after the end-of-call
// report reapplies a non-terminal status over a terminal one. Terminal
// bookkeeping (EndedAt, cost, structured data) is only ever written by the
// report handler, so the record still converges on the next report replay.
type Service struct {
	repo  Repository
	sched Scheduler
	audit FailureRecorder

	clock          func() time.Time
	log            *slog.Logger
	retryBaseDelay time.Duration
}

func NewService(repo Repository, sched Scheduler) *Service {
	return &Service{
		repo:           repo,
		sched:          sched,
		clock:          time.Now,
		log:            slog.Default(),
		retryBaseDelay: DefaultRetryBaseDelay,
	}
}

// WithAudit attaches a final-failure recorder.
func (s *Service) WithAudit(r FailureRecorder) *Service {
	s.audit = r
	return s
}

// WithLogger overrides the default logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	if l != nil {
		s.log = l
	}
	return s
}

// WithRetryBaseDelay overrides the backoff unit (config-driven).
func (s *Service) WithRetryBaseDelay(d time.Duration) *Service {
	if d > 0 {
		s.retryBaseDelay = d
	}
	return s
}

// ScheduleCallRequest creates a new outbound call attempt for a case.
type ScheduleCallRequest struct {
	WorkspaceID  string
	CaseID       string
	PhoneNumber  string
	ScheduledFor time.Time
	MaxRetries   int
}

// ScheduleCall persists a queued record and enqueues its delayed dial job.
// A scheduling failure is returned to the caller; the record is marked failed
// rather than left silently queued with no job.
func (s *Service) ScheduleCall(ctx context.Context, req ScheduleCallRequest) (CallRecord, error) {
	if req.WorkspaceID == "" || req.CaseID == "" || req.PhoneNumber == "" {
		return CallRecord{}, ErrInvalidRequest
	}
	if req.ScheduledFor.IsZero() {
		return CallRecord{}, ErrInvalidRequest
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := s.clock().UTC()
	rec := CallRecord{
		ID:           uuid.NewString(),
		WorkspaceID:  req.WorkspaceID,
		CaseID:       req.CaseID,
		PhoneNumber:  req.PhoneNumber,
		Status:       CallStatusQueued,
		ScheduledFor: req.ScheduledFor,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	rec, err := s.repo.Create(ctx, rec)
	if err != nil {
		return CallRecord{}, err
	}

	jobID, err := s.sched.Schedule(ctx, rec.ID, req.ScheduledFor)
	if err != nil {
		rec.Status = CallStatusFailed
		rec.EndedReason = "scheduling-failed"
		rec.UpdatedAt = s.clock().UTC()
		if uerr := s.repo.Update(ctx, rec); uerr != nil {
			s.log.Error("call schedule bookkeeping failed", "record_id", rec.ID, "err", uerr)
		}
		return CallRecord{}, fmt.Errorf("calls: schedule dial job: %w", err)
	}
	rec.QueueMessageID = jobID
	rec.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

// HandleStatusUpdate applies a non-terminal provider status transition.
// A record not found is logged and ignored: the provider retries webhook
// delivery and duplicates/out-of-order events are expected.
func (s *Service) HandleStatusUpdate(ctx context.Context, ev StatusUpdateEvent) error {
	if ev.ProviderCallID == "" {
		s.log.Warn("status-update without provider call id dropped")
		return nil
	}
	rec, err := s.repo.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("status-update for unknown call ignored", "provider_call_id", ev.ProviderCallID)
			return nil
		}
		return err
	}

	if st, ok := mapProviderStatus(ev.ProviderStatus); ok {
		rec.Status = st
	}
	if ev.StartedAt != nil {
		rec.StartedAt = ev.StartedAt
	}
	rec.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, rec)
}

// HandleEndOfCallReport applies the authoritative terminal event: duration,
// cost, structured output, final status classification, and — for failed
// outcomes — the retry decision.
func (s *Service) HandleEndOfCallReport(ctx context.Context, ev EndOfCallReportEvent) error {
	if ev.ProviderCallID == "" {
		s.log.Warn("end-of-call-report without provider call id dropped")
		return nil
	}
	rec, err := s.repo.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("end-of-call-report for unknown call ignored", "provider_call_id", ev.ProviderCallID)
			return nil
		}
		return err
	}

	// Replay guard: a duplicate report for an attempt we already rescheduled
	// must not schedule a second job or bump the retry counter again. The
	// window is open only while the retry job is still outstanding; once the
	// dispatcher dials (clearing QueueMessageID), a report with the same
	// reason is the next attempt's outcome, not a replay.
	if rec.Status == CallStatusQueued && rec.QueueMessageID != "" && rec.NextRetryAt != nil && rec.EndedReason == ev.EndedReason {
		s.log.Info("duplicate end-of-call-report ignored", "provider_call_id", ev.ProviderCallID)
		return nil
	}

	rec.EndedReason = ev.EndedReason
	if ev.StartedAt != nil {
		rec.StartedAt = ev.StartedAt
	}
	if ev.EndedAt != nil {
		rec.EndedAt = ev.EndedAt
	}
	if rec.StartedAt != nil && rec.EndedAt != nil {
		dur := int(rec.EndedAt.Sub(*rec.StartedAt) / time.Second)
		if dur < 0 {
			// Provider clock skew can put endedAt before startedAt.
			dur = 0
		}
		rec.DurationSeconds = dur
	}
	// Cost is recomputed from the event, never accumulated, so replays of a
	// terminal report converge on the same stored state.
	rec.CostMinor = sumCosts(ev.Costs)
	if ev.Transcript != "" {
		rec.Transcript = ev.Transcript
	}
	if ev.RecordingURL != "" {
		rec.RecordingURL = ev.RecordingURL
	}
	if len(ev.StructuredData) > 0 {
		rec.StructuredData = ev.StructuredData
	}

	rec.Status = classifyEndedReason(ev.EndedReason)
	if rec.Status == CallStatusFailed {
		s.applyRetryDecision(ctx, &rec)
	}

	rec.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, rec)
}

// HandleHang records a dropped-call hint. It fills EndedReason/EndedAt only
// when unset and never re-derives cost or duration; the end-of-call report
// remains the retry authority.
func (s *Service) HandleHang(ctx context.Context, ev HangEvent) error {
	if ev.ProviderCallID == "" {
		s.log.Warn("hang event without provider call id dropped")
		return nil
	}
	rec, err := s.repo.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Info("hang event for unknown call ignored", "provider_call_id", ev.ProviderCallID)
			return nil
		}
		return err
	}

	changed := false
	if rec.EndedReason == "" {
		reason := ev.EndedReason
		if reason == "" {
			reason = "hang"
		}
		rec.EndedReason = reason
		changed = true
	}
	if rec.EndedAt == nil {
		if ev.EndedAt != nil {
			rec.EndedAt = ev.EndedAt
		} else {
			now := s.clock().UTC()
			rec.EndedAt = &now
		}
		changed = true
	}
	if !changed {
		return nil
	}
	rec.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, rec)
}

// applyRetryDecision mutates rec in place. On a retryable reason under the
// ceiling it flips the record back to queued and enqueues the next attempt;
// otherwise it stamps the final-failure flag for downstream alerting.
func (s *Service) applyRetryDecision(ctx context.Context, rec *CallRecord) {
	if !ShouldRetry(rec.EndedReason) {
		s.markFinalFailure(ctx, rec, "non-retryable ended reason: "+rec.EndedReason)
		return
	}
	if rec.RetryCount >= rec.MaxRetries {
		s.markFinalFailure(ctx, rec, fmt.Sprintf("retries exhausted after %d attempts", rec.RetryCount))
		return
	}

	delay := retryDelayFrom(s.retryBaseDelay, rec.RetryCount)
	fireAt := s.clock().UTC().Add(delay)

	jobID, err := s.sched.Schedule(ctx, rec.ID, fireAt)
	if err != nil {
		// Scheduling failure is a hard failure of the retry attempt: the
		// record stays failed rather than silently reverting to queued.
		s.log.Error("retry scheduling failed", "record_id", rec.ID, "retry_count", rec.RetryCount, "err", err)
		return
	}

	rec.Status = CallStatusQueued
	rec.RetryCount++
	rec.NextRetryAt = &fireAt
	// Overwrite, never append: one outstanding queue message per record.
	rec.QueueMessageID = jobID
	s.log.Info("call retry scheduled",
		"record_id", rec.ID,
		"retry_count", rec.RetryCount,
		"next_retry_at", fireAt,
		"ended_reason", rec.EndedReason,
	)
}

func (s *Service) markFinalFailure(ctx context.Context, rec *CallRecord, reason string) {
	if rec.FinalFailure {
		return
	}
	rec.FinalFailure = true
	rec.FinalFailureReason = reason
	s.log.Warn("call failed terminally", "record_id", rec.ID, "case_id", rec.CaseID, "reason", reason)
	if s.audit != nil {
		s.audit.RecordFinalFailure(ctx, *rec)
	}
}

// mapProviderStatus translates the provider's status vocabulary. The second
// return is false for "ended": terminal classification belongs exclusively
// to the end-of-call report.
func mapProviderStatus(providerStatus string) (CallStatus, bool) {
	switch providerStatus {
	case "queued":
		return CallStatusQueued, true
	case "ringing":
		return CallStatusRinging, true
	case "in-progress", "forwarding":
		return CallStatusInProgress, true
	default:
		return "", false
	}
}

// failedEndedReasons are reasons classified as failed outcomes. Transient
// members of this set are retried per the retry policy.
var failedEndedReasons = map[string]struct{}{
	"customer-busy":           {},
	"customer-did-not-answer": {},
	"dial-busy":               {},
	"dial-no-answer":          {},
	"dial-failed":             {},
	"voicemail":               {},
	"assistant-error":         {},
	"provider-fault":          {},
	"no-microphone-access":    {},
}

// classifyEndedReason maps a provider ended reason to a final status.
// Unrecognized reasons fail open to completed so a record never wedges in a
// non-terminal state on provider vocabulary drift.
func classifyEndedReason(reason string) CallStatus {
	switch reason {
	case "assistant-ended-call", "assistant-ended-call-after-message-spoken", "customer-ended-call":
		return CallStatusCompleted
	}
	if strings.Contains(reason, "cancel") {
		return CallStatusCancelled
	}
	if _, ok := failedEndedReasons[reason]; ok {
		return CallStatusFailed
	}
	if strings.Contains(reason, "error") || strings.HasPrefix(reason, "dial-") {
		return CallStatusFailed
	}
	return CallStatusCompleted
}

func sumCosts(entries []CostEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.AmountMinor
	}
	return total
}

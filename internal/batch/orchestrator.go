package batch

import (
	"context"
	"fmt"
	"time"

	"outreach-platform/internal/calls"
)

// EmailScheduler enqueues one outreach email for a case. Email content and
// delivery live outside this service.
type EmailScheduler interface {
	ScheduleEmail(ctx context.Context, c EligibleCase, at time.Time) (string, error)
}

// CallOrchestrator is the default per-case Orchestrator: it schedules a call
// through the call lifecycle service and, when an email scheduler is wired
// and the case has an address, an outreach email as well.
type CallOrchestrator struct {
	Calls *calls.Service
	Email EmailScheduler
}

// CanEmail reports whether an email scheduler is wired. Eligibility selection
// uses it to keep email-only cases out of batches that could never reach them.
func (o *CallOrchestrator) CanEmail() bool { return o.Email != nil }

func (o *CallOrchestrator) ScheduleOutreach(ctx context.Context, c EligibleCase, emailAt, callAt time.Time) (Outcome, error) {
	var out Outcome

	if c.Email != "" && o.Email != nil {
		emailID, err := o.Email.ScheduleEmail(ctx, c, emailAt)
		if err != nil {
			return Outcome{}, fmt.Errorf("schedule email: %w", err)
		}
		out.EmailID = emailID
	}

	if c.Phone != "" {
		rec, err := o.Calls.ScheduleCall(ctx, calls.ScheduleCallRequest{
			WorkspaceID:  c.WorkspaceID,
			CaseID:       c.CaseID,
			PhoneNumber:  c.Phone,
			ScheduledFor: callAt,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("schedule call: %w", err)
		}
		out.CallID = rec.ID
	}

	if out.EmailID == "" && out.CallID == "" {
		return Outcome{}, fmt.Errorf("case %s has no schedulable channel", c.CaseID)
	}
	return out, nil
}

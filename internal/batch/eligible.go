package batch

import (
	"context"
	"fmt"
)

// CaseSource fetches candidate cases. One batched fetch per selection; the
// eligibility filter runs in memory to avoid a query per case.
type CaseSource interface {
	ListReadyCases(ctx context.Context, workspaceID string) ([]Case, error)
}

// readyBusinessStates are the terminal case states outreach may target.
var readyBusinessStates = map[string]bool{
	"ready_for_outreach": true,
	"awaiting_followup":  true,
}

// EligibleCases returns the cases a new batch may cover: ready business
// state, at least one usable contact channel, and no outreach already in
// flight.
func (p *Processor) EligibleCases(ctx context.Context, workspaceID string) ([]EligibleCase, error) {
	if workspaceID == "" {
		return nil, ErrInvalidRequest
	}
	candidates, err := p.cases.ListReadyCases(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list ready cases: %w", err)
	}

	canEmail := p.canEmail()
	out := make([]EligibleCase, 0, len(candidates))
	for _, c := range candidates {
		if !readyBusinessStates[c.BusinessState] {
			continue
		}
		// At least one channel the orchestrator can act on; an email-only
		// case in a pipeline without an email scheduler would fail every
		// batch it entered.
		if c.Phone == "" && (c.Email == "" || !canEmail) {
			continue
		}
		if c.HasActiveEmail || c.HasActiveCall {
			continue
		}
		out = append(out, EligibleCase{
			CaseID:      c.CaseID,
			WorkspaceID: c.WorkspaceID,
			Email:       c.Email,
			Phone:       c.Phone,
		})
	}
	return out, nil
}

// canEmail asks the orchestrator whether it can schedule emails. Orchestrators
// that don't declare a capability are assumed to handle both channels.
func (p *Processor) canEmail() bool {
	type emailCapable interface{ CanEmail() bool }
	if ec, ok := p.orch.(emailCapable); ok {
		return ec.CanEmail()
	}
	return true
}

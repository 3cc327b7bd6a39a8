package calls

import (
	"context"
	"encoding/json"
	"log/slog"

	"outreach-platform/internal/audit"
)

// AuditAdapter bridges the lifecycle Service's final-failure hook to the
// shared audit.Service.
//
// Appends are best-effort: a failing audit write is logged and swallowed so
// the webhook ack path is never blocked.

type AuditAdapter struct {
	Audit *audit.Service
	Log   *slog.Logger
}

func (a AuditAdapter) RecordFinalFailure(ctx context.Context, rec CallRecord) {
	if a.Audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"ended_reason": rec.EndedReason,
		"retry_count":  rec.RetryCount,
		"max_retries":  rec.MaxRetries,
	})
	err := a.Audit.LogCallFinalFailure(ctx, rec.WorkspaceID, rec.ID, rec.CaseID, rec.FinalFailureReason, string(meta))
	if err != nil && a.Log != nil {
		a.Log.Error("final failure audit append failed", "record_id", rec.ID, "err", err)
	}
}

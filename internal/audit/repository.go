package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events via database/sql (pgx stdlib driver).
// The audit_events table is INSERT-only; no update or delete paths exist.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, workspace_id, type, actor_user_id, actor_role,
  call_id, case_id, batch_id, message, metadata, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, e.Type, e.ActorUserID, e.ActorRole,
		e.CallID, e.CaseID, e.BatchID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}

package batch

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"outreach-platform/pkg/utils"
)

// PostgresRepo persists batches and items via database/sql (pgx stdlib
// driver). error_summary is a JSONB column; items live in batch_items keyed
// by (batch_id, case_id).

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const batchColumns = `
id, workspace_id, status, total_cases, processed_cases, successful_cases,
failed_cases, email_schedule_time, call_schedule_time, started_at,
completed_at, cancelled_at, error_summary, created_at, updated_at`

func (r *PostgresRepo) CreateBatch(ctx context.Context, b Batch) (Batch, error) {
	const q = `
INSERT INTO batches (` + batchColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	summary, err := marshalSummary(b.ErrorSummary)
	if err != nil {
		return Batch{}, err
	}
	_, err = r.db.ExecContext(ctx, q,
		b.ID, b.WorkspaceID, b.Status, b.TotalCases, b.ProcessedCases,
		b.SuccessfulCases, b.FailedCases, b.EmailScheduleTime, b.CallScheduleTime,
		b.StartedAt, b.CompletedAt, b.CancelledAt, summary, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (r *PostgresRepo) GetBatch(ctx context.Context, id string) (Batch, error) {
	const q = `
SELECT ` + batchColumns + `
FROM batches
WHERE id = $1
`
	var (
		b       Batch
		summary []byte
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.WorkspaceID, &b.Status, &b.TotalCases, &b.ProcessedCases,
		&b.SuccessfulCases, &b.FailedCases, &b.EmailScheduleTime, &b.CallScheduleTime,
		&b.StartedAt, &b.CompletedAt, &b.CancelledAt, &summary, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	if err != nil {
		return Batch{}, err
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &b.ErrorSummary); err != nil {
			return Batch{}, err
		}
	}
	return b, nil
}

func (r *PostgresRepo) UpdateBatch(ctx context.Context, b Batch) error {
	const q = `
UPDATE batches SET
  status = $2,
  processed_cases = $3,
  successful_cases = $4,
  failed_cases = $5,
  started_at = $6,
  completed_at = $7,
  cancelled_at = $8,
  error_summary = $9,
  updated_at = $10
WHERE id = $1
`
	summary, err := marshalSummary(b.ErrorSummary)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		b.ID, b.Status, b.ProcessedCases, b.SuccessfulCases, b.FailedCases,
		b.StartedAt, b.CompletedAt, b.CancelledAt, summary, b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateItems inserts all items in one transaction so a batch is never
// persisted with a partial item set.
func (r *PostgresRepo) CreateItems(ctx context.Context, items []BatchItem) error {
	const q = `
INSERT INTO batch_items (batch_id, case_id, status, email_id, call_id, error_message, processed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, it := range items {
			if _, err := tx.ExecContext(ctx, q,
				it.BatchID, it.CaseID, it.Status, it.EmailID, it.CallID, it.ErrorMessage, it.ProcessedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) UpdateItem(ctx context.Context, item BatchItem) error {
	const q = `
UPDATE batch_items SET
  status = $3,
  email_id = $4,
  call_id = $5,
  error_message = $6,
  processed_at = $7
WHERE batch_id = $1 AND case_id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		item.BatchID, item.CaseID, item.Status, item.EmailID, item.CallID,
		item.ErrorMessage, item.ProcessedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListItems(ctx context.Context, batchID string) ([]BatchItem, error) {
	const q = `
SELECT batch_id, case_id, status, email_id, call_id, error_message, processed_at
FROM batch_items
WHERE batch_id = $1
ORDER BY case_id
`
	rows, err := r.db.QueryContext(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchItem
	for rows.Next() {
		var it BatchItem
		if err := rows.Scan(&it.BatchID, &it.CaseID, &it.Status, &it.EmailID,
			&it.CallID, &it.ErrorMessage, &it.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func marshalSummary(summary []CaseError) ([]byte, error) {
	if len(summary) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(summary)
}

// PostgresCaseSource reads candidate cases from the synced cases table. The
// active-outreach flags are derived with EXISTS subqueries so selection stays
// a single round trip.
type PostgresCaseSource struct {
	db *sql.DB
}

func NewPostgresCaseSource(db *sql.DB) *PostgresCaseSource { return &PostgresCaseSource{db: db} }

func (s *PostgresCaseSource) ListReadyCases(ctx context.Context, workspaceID string) ([]Case, error) {
	const q = `
SELECT
  c.id, c.workspace_id, c.business_state, c.email, c.phone,
  EXISTS (
    SELECT 1 FROM scheduled_emails e
    WHERE e.case_id = c.id AND e.status IN ('pending','scheduled')
  ) AS has_active_email,
  EXISTS (
    SELECT 1 FROM call_records r
    WHERE r.case_id = c.id AND r.status IN ('queued','ringing','in_progress')
  ) AS has_active_call
FROM cases c
WHERE c.workspace_id = $1
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Case
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.CaseID, &c.WorkspaceID, &c.BusinessState, &c.Email,
			&c.Phone, &c.HasActiveEmail, &c.HasActiveCall); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

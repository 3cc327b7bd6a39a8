package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo persists call records via database/sql (pgx stdlib driver).
//
// NOTE: This repository assumes a call_records table with a unique index on
// provider_call_id (WHERE provider_call_id <> ''). Rows are never deleted.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callRecordColumns = `
id, workspace_id, case_id, provider_call_id, phone_number, status, ended_reason,
scheduled_for, started_at, ended_at, duration_seconds, transcript, recording_url,
structured_data, cost_minor, retry_count, max_retries, next_retry_at,
final_failure, final_failure_reason, queue_message_id, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	const q = `
INSERT INTO call_records (` + callRecordColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
`
	structured, err := marshalStructured(rec.StructuredData)
	if err != nil {
		return CallRecord{}, err
	}
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.WorkspaceID, rec.CaseID, rec.ProviderCallID, rec.PhoneNumber,
		rec.Status, rec.EndedReason, rec.ScheduledFor, rec.StartedAt, rec.EndedAt,
		rec.DurationSeconds, rec.Transcript, rec.RecordingURL, structured,
		rec.CostMinor, rec.RetryCount, rec.MaxRetries, rec.NextRetryAt,
		rec.FinalFailure, rec.FinalFailureReason, rec.QueueMessageID,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	const q = `
SELECT ` + callRecordColumns + `
FROM call_records
WHERE id = $1
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	const q = `
SELECT ` + callRecordColumns + `
FROM call_records
WHERE provider_call_id = $1
`
	if providerCallID == "" {
		return CallRecord{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) Update(ctx context.Context, rec CallRecord) error {
	const q = `
UPDATE call_records SET
  provider_call_id = $2,
  phone_number = $3,
  status = $4,
  ended_reason = $5,
  scheduled_for = $6,
  started_at = $7,
  ended_at = $8,
  duration_seconds = $9,
  transcript = $10,
  recording_url = $11,
  structured_data = $12,
  cost_minor = $13,
  retry_count = $14,
  max_retries = $15,
  next_retry_at = $16,
  final_failure = $17,
  final_failure_reason = $18,
  queue_message_id = $19,
  updated_at = $20
WHERE id = $1
`
	structured, err := marshalStructured(rec.StructuredData)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.ProviderCallID, rec.PhoneNumber, rec.Status, rec.EndedReason,
		rec.ScheduledFor, rec.StartedAt, rec.EndedAt, rec.DurationSeconds,
		rec.Transcript, rec.RecordingURL, structured, rec.CostMinor,
		rec.RetryCount, rec.MaxRetries, rec.NextRetryAt,
		rec.FinalFailure, rec.FinalFailureReason, rec.QueueMessageID, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]CallRecord, error) {
	const q = `
SELECT ` + callRecordColumns + `
FROM call_records
WHERE workspace_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepo) scanOne(row *sql.Row) (CallRecord, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	return rec, nil
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var structured []byte
	if err := row.Scan(
		&rec.ID, &rec.WorkspaceID, &rec.CaseID, &rec.ProviderCallID, &rec.PhoneNumber,
		&rec.Status, &rec.EndedReason, &rec.ScheduledFor, &rec.StartedAt, &rec.EndedAt,
		&rec.DurationSeconds, &rec.Transcript, &rec.RecordingURL, &structured,
		&rec.CostMinor, &rec.RetryCount, &rec.MaxRetries, &rec.NextRetryAt,
		&rec.FinalFailure, &rec.FinalFailureReason, &rec.QueueMessageID,
		&rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &rec.StructuredData); err != nil {
			// Structured data is provider-shaped and non-critical; a corrupt
			// blob must not make the whole record unreadable.
			rec.StructuredData = nil
		}
	}
	return rec, nil
}

func marshalStructured(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory call record repository for tests and early
// development. It enforces the provider_call_id uniqueness the Postgres
// schema would.

type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]CallRecord{}}
}

func (r *MemoryRepo) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ProviderCallID != "" {
		for _, existing := range r.records {
			if existing.ProviderCallID == rec.ProviderCallID {
				return CallRecord{}, ErrInvalidRequest
			}
		}
	}
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if providerCallID == "" {
		return CallRecord{}, ErrNotFound
	}
	for _, rec := range r.records {
		if rec.ProviderCallID == providerCallID {
			return rec, nil
		}
	}
	return CallRecord{}, ErrNotFound
}

func (r *MemoryRepo) Update(ctx context.Context, rec CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return ErrNotFound
	}
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) ListByWorkspace(ctx context.Context, workspaceID string, from, to time.Time) ([]CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, rec := range r.records {
		if rec.WorkspaceID != workspaceID {
			continue
		}
		if !rec.CreatedAt.IsZero() && (!from.IsZero() || !to.IsZero()) {
			if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

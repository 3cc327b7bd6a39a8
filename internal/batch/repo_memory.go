package batch

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory batch store for tests and early development.

type MemoryRepo struct {
	mu      sync.Mutex
	batches map[string]Batch
	items   map[string][]BatchItem
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		batches: map[string]Batch{},
		items:   map[string][]BatchItem{},
	}
}

func (r *MemoryRepo) CreateBatch(ctx context.Context, b Batch) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == "" {
		return Batch{}, ErrInvalidRequest
	}
	r.batches[b.ID] = b
	return b, nil
}

func (r *MemoryRepo) GetBatch(ctx context.Context, id string) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) UpdateBatch(ctx context.Context, b Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.ID]; !ok {
		return ErrNotFound
	}
	r.batches[b.ID] = b
	return nil
}

func (r *MemoryRepo) CreateItems(ctx context.Context, items []BatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		if it.BatchID == "" || it.CaseID == "" {
			return ErrInvalidRequest
		}
		r.items[it.BatchID] = append(r.items[it.BatchID], it)
	}
	return nil
}

func (r *MemoryRepo) UpdateItem(ctx context.Context, item BatchItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[item.BatchID]
	for i := range list {
		if list[i].CaseID == item.CaseID {
			list[i] = item
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) ListItems(ctx context.Context, batchID string) ([]BatchItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BatchItem, len(r.items[batchID]))
	copy(out, r.items[batchID])
	return out, nil
}

// MemoryCaseSource serves a fixed candidate set (tests).
type MemoryCaseSource struct {
	Cases []Case
}

func (s *MemoryCaseSource) ListReadyCases(ctx context.Context, workspaceID string) ([]Case, error) {
	out := make([]Case, 0, len(s.Cases))
	for _, c := range s.Cases {
		if c.WorkspaceID == workspaceID {
			out = append(out, c)
		}
	}
	return out, nil
}

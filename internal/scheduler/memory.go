package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory scheduler for tests and single-process development.
// It implements both the scheduling side (calls.Scheduler) and the claim side
// used by the Dispatcher.

type Memory struct {
	mu    sync.Mutex
	jobs  map[string]Job
	clock func() time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: map[string]Job{}, clock: time.Now}
}

func (m *Memory) Schedule(ctx context.Context, recordID string, fireAt time.Time) (string, error) {
	if fireAt.Before(m.clock()) {
		return "", ErrPastFireTime
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.jobs[id] = Job{ID: id, RecordID: recordID, FireAt: fireAt}
	return id, nil
}

func (m *Memory) Cancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

// Claim removes and returns up to limit jobs due at or before now,
// earliest first.
func (m *Memory) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]Job, 0)
	for _, j := range m.jobs {
		if !j.FireAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].FireAt.Before(due[k].FireAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, j := range due {
		delete(m.jobs, j.ID)
	}
	return due, nil
}

// Pending returns a snapshot of unclaimed jobs (test helper).
func (m *Memory) Pending() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out
}

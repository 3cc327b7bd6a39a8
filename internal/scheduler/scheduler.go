package scheduler

import (
	"errors"
	"time"
)

// The scheduler is the delayed-execution collaborator: it holds one job per
// call record and fires it at the scheduled time by letting the dispatcher
// claim it. Job payloads are deliberately tiny (record id only); everything
// else is re-read from persistence at fire time.

var (
	// ErrPastFireTime is returned when a caller asks to schedule a job in
	// the past. Callers must treat this as a hard failure of the attempt.
	ErrPastFireTime = errors.New("scheduler: fire time is in the past")
)

// Job is one claimed delayed job.
type Job struct {
	ID       string
	RecordID string
	FireAt   time.Time
}

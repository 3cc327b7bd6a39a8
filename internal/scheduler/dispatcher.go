package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach-platform/internal/calls"
	"outreach-platform/internal/provider"
	"outreach-platform/pkg/utils"
)

// Claimer is the dispatcher's view of the delayed-job store.
type Claimer interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Schedule(ctx context.Context, recordID string, fireAt time.Time) (string, error)
}

// Dialer places outbound calls with the voice provider.
type Dialer interface {
	CreateCall(ctx context.Context, req provider.DialRequest) (provider.DialResult, error)
}

// Dispatcher drains due jobs and turns them into provider dial requests.
//
// Fire-time checks are what make stale jobs harmless: a job whose id no
// longer matches the record's QueueMessageID was superseded by a later
// reschedule and is dropped, and a record that is no longer queued (cancelled,
// already dialed) is left alone.
type Dispatcher struct {
	queue  Claimer
	repo   calls.Repository
	dialer Dialer

	// rdb enables the per-workspace dial cap. Nil disables capping
	// (single-process development).
	rdb      *redis.Client
	dialCap  int
	capTTL   time.Duration
	deferFor time.Duration

	interval  time.Duration
	batchSize int
	clock     func() time.Time
	log       *slog.Logger
}

func NewDispatcher(queue Claimer, repo calls.Repository, dialer Dialer) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		repo:      repo,
		dialer:    dialer,
		dialCap:   5,
		capTTL:    time.Minute,
		deferFor:  30 * time.Second,
		interval:  5 * time.Second,
		batchSize: 20,
		clock:     time.Now,
		log:       slog.Default(),
	}
}

// WithDialCap enables the per-workspace concurrent dial cap on the given
// redis client.
func (d *Dispatcher) WithDialCap(rdb *redis.Client, limit int) *Dispatcher {
	d.rdb = rdb
	if limit > 0 {
		d.dialCap = limit
	}
	return d
}

// WithInterval overrides the poll interval.
func (d *Dispatcher) WithInterval(iv time.Duration) *Dispatcher {
	if iv > 0 {
		d.interval = iv
	}
	return d
}

// WithLogger overrides the default logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	if l != nil {
		d.log = l
	}
	return d
}

// Run polls for due jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info("dispatcher started", "interval", d.interval.String())
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick claims and processes one batch of due jobs. Exported so tests and the
// run loop share the same path.
func (d *Dispatcher) Tick(ctx context.Context) {
	jobs, err := d.queue.Claim(ctx, d.clock(), d.batchSize)
	if err != nil {
		d.log.Error("claim due jobs failed", "error", err)
		return
	}
	for _, job := range jobs {
		d.dispatch(ctx, job)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job Job) {
	rec, err := d.repo.GetByID(ctx, job.RecordID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			d.log.Warn("job references unknown record, dropping", "job_id", job.ID, "record_id", job.RecordID)
			return
		}
		d.log.Error("load record failed", "job_id", job.ID, "record_id", job.RecordID, "error", err)
		return
	}

	// Superseded: a retry overwrote QueueMessageID with a newer job.
	if rec.QueueMessageID != job.ID {
		d.log.Info("stale job dropped", "job_id", job.ID, "record_id", rec.ID)
		return
	}
	if rec.Status != calls.CallStatusQueued {
		d.log.Info("record no longer queued, skipping dial", "record_id", rec.ID, "status", string(rec.Status))
		return
	}

	if d.rdb != nil {
		ok, err := utils.AcquireConcurrencyCap(ctx, d.rdb, dialCapKey(rec.WorkspaceID), d.dialCap, d.capTTL)
		if err != nil {
			d.log.Error("dial cap check failed", "record_id", rec.ID, "error", err)
			d.deferJob(ctx, rec)
			return
		}
		if !ok {
			d.log.Info("workspace dial cap reached, deferring", "record_id", rec.ID, "workspace_id", rec.WorkspaceID)
			d.deferJob(ctx, rec)
			return
		}
		defer func() {
			if err := utils.ReleaseConcurrencyCap(ctx, d.rdb, dialCapKey(rec.WorkspaceID)); err != nil {
				d.log.Warn("dial cap release failed", "workspace_id", rec.WorkspaceID, "error", err)
			}
		}()
	}

	res, err := d.dialer.CreateCall(ctx, provider.DialRequest{
		RecordID:    rec.ID,
		PhoneNumber: rec.PhoneNumber,
		Metadata:    map[string]string{"case_id": rec.CaseID},
	})
	now := d.clock().UTC()
	if err != nil {
		// No provider call exists, so no webhook will ever arrive for
		// this attempt. Fail the record here.
		d.log.Error("provider dial failed", "record_id", rec.ID, "error", err)
		rec.Status = calls.CallStatusFailed
		rec.EndedReason = "provider-request-failed"
		rec.FinalFailure = true
		rec.FinalFailureReason = "provider-request-failed"
		rec.QueueMessageID = ""
		rec.UpdatedAt = now
		if err := d.repo.Update(ctx, rec); err != nil {
			d.log.Error("persist dial failure", "record_id", rec.ID, "error", err)
		}
		return
	}

	rec.ProviderCallID = res.ProviderCallID
	rec.QueueMessageID = ""
	// The scheduled retry has fired; a stale NextRetryAt must not make the
	// next attempt's report look like a replay.
	rec.NextRetryAt = nil
	rec.UpdatedAt = now
	if err := d.repo.Update(ctx, rec); err != nil {
		d.log.Error("persist provider call id", "record_id", rec.ID, "provider_call_id", res.ProviderCallID, "error", err)
		return
	}
	d.log.Info("call dispatched", "record_id", rec.ID, "provider_call_id", res.ProviderCallID)
}

// deferJob re-enqueues the record a short interval out and re-points its
// QueueMessageID at the new job.
func (d *Dispatcher) deferJob(ctx context.Context, rec calls.CallRecord) {
	jobID, err := d.queue.Schedule(ctx, rec.ID, d.clock().Add(d.deferFor))
	if err != nil {
		d.log.Error("defer job failed", "record_id", rec.ID, "error", err)
		return
	}
	rec.QueueMessageID = jobID
	rec.UpdatedAt = d.clock().UTC()
	if err := d.repo.Update(ctx, rec); err != nil {
		d.log.Error("persist deferred job id", "record_id", rec.ID, "error", err)
	}
}

func dialCapKey(workspaceID string) string {
	return "outreach:dialcap:" + workspaceID
}

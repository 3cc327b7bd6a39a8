package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis-backed scheduler.
//
// Layout:
// - ZSET {prefix}:due    member = job id, score = fire time (unix millis)
// - HASH {prefix}:jobs   field  = job id, value = record id
//
// Claims are atomic via Lua so two dispatcher instances never fire the same
// job twice. Cancel is best-effort: a record's QueueMessageID overwrite is
// the real single-outstanding-job guarantee; removing the stale member just
// keeps the set small.

const defaultKeyPrefix = "outreach:scheduler"

type Redis struct {
	rdb    *redis.Client
	prefix string
	clock  func() time.Time
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, prefix: defaultKeyPrefix, clock: time.Now}
}

func (s *Redis) dueKey() string  { return s.prefix + ":due" }
func (s *Redis) jobsKey() string { return s.prefix + ":jobs" }

var claimScript = redis.NewScript(`
-- KEYS[1] = due zset
-- KEYS[2] = jobs hash
-- ARGV[1] = now (unix millis)
-- ARGV[2] = limit
--
-- Returns a flat array: job_id, record_id, score, ...
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'WITHSCORES', 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for i = 1, #due, 2 do
  local job_id = due[i]
  local score = due[i + 1]
  local record_id = redis.call('HGET', KEYS[2], job_id)
  redis.call('ZREM', KEYS[1], job_id)
  redis.call('HDEL', KEYS[2], job_id)
  if record_id then
    out[#out + 1] = job_id
    out[#out + 1] = record_id
    out[#out + 1] = score
  end
end
return out
`)

// Schedule enqueues a delayed job and returns its id. fireAt in the past is
// rejected; the queue is not a work-stealing pool for overdue work.
func (s *Redis) Schedule(ctx context.Context, recordID string, fireAt time.Time) (string, error) {
	if recordID == "" {
		return "", fmt.Errorf("scheduler: record id is required")
	}
	if fireAt.Before(s.clock()) {
		return "", ErrPastFireTime
	}

	jobID := uuid.NewString()
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, s.dueKey(), redis.Z{Score: float64(fireAt.UnixMilli()), Member: jobID})
	pipe.HSet(ctx, s.jobsKey(), jobID, recordID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("scheduler: enqueue job: %w", err)
	}
	return jobID, nil
}

// Cancel removes a pending job. Unknown ids are not an error.
func (s *Redis) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.ZRem(ctx, s.dueKey(), jobID)
	pipe.HDel(ctx, s.jobsKey(), jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// Claim atomically removes and returns up to limit due jobs.
func (s *Redis) Claim(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := claimScript.Run(ctx, s.rdb, []string{s.dueKey(), s.jobsKey()}, now.UnixMilli(), limit).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("scheduler: claim due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(res)/3)
	for i := 0; i+2 < len(res); i += 3 {
		score, _ := strconv.ParseFloat(res[i+2], 64)
		jobs = append(jobs, Job{
			ID:       res[i],
			RecordID: res[i+1],
			FireAt:   time.UnixMilli(int64(score)).UTC(),
		})
	}
	return jobs, nil
}

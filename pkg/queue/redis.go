package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound is returned when a job hash no longer exists, usually
// because retention cleanup removed it.
var ErrJobNotFound = errors.New("job not found")

type Config struct {
	Name           string
	LockTTL        time.Duration
	DefaultOptions Options
}

// RedisQueue keeps job ids in lists and sorted sets and job bodies in hashes:
//
//	<prefix>wait       list, LPUSH on add, popped from the right
//	<prefix>active     list of reserved jobs
//	<prefix>delayed    zset scored by the time the retry becomes due
//	<prefix>completed  zset scored by finish time
//	<prefix>failed     zset scored by finish time
//	<prefix>job:<id>   hash
//	<prefix>lock:<id>  held while a worker processes the job
type RedisQueue struct {
	client redis.UniversalClient
	cfg    Config
	prefix string
	now    func() time.Time
}

type Option func(*RedisQueue)

// WithClock overrides the clock used for delays and retention.
func WithClock(now func() time.Time) Option {
	return func(q *RedisQueue) {
		q.now = now
	}
}

func NewRedisQueue(client redis.UniversalClient, cfg Config, opts ...Option) *RedisQueue {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.DefaultOptions.Attempts <= 0 {
		cfg.DefaultOptions.Attempts = 1
	}

	q := &RedisQueue{
		client: client,
		cfg:    cfg,
		prefix: "queue:" + cfg.Name + ":",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) Name() string {
	return q.cfg.Name
}

func (q *RedisQueue) key(parts ...string) string {
	k := q.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (q *RedisQueue) jobKey(id string) string {
	return q.key("job", id)
}

func (q *RedisQueue) lockKey(id string) string {
	return q.key("lock", id)
}

// Add stores a new job and makes it runnable immediately.
func (q *RedisQueue) Add(ctx context.Context, name string, payload interface{}, opts Options) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	if opts.Attempts <= 0 {
		opts.Attempts = q.cfg.DefaultOptions.Attempts
	}
	if opts.Backoff.Type == "" {
		opts.Backoff = q.cfg.DefaultOptions.Backoff
	}

	job := &Job{
		ID:        uuid.New().String(),
		Name:      name,
		Data:      data,
		Attempts:  opts.Attempts,
		Backoff:   opts.Backoff,
		State:     StateWaiting,
		CreatedAt: q.now(),
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobKey(job.ID), map[string]interface{}{
			"name":          job.Name,
			"data":          string(job.Data),
			"attempts":      job.Attempts,
			"attempts_made": 0,
			"backoff_type":  string(job.Backoff.Type),
			"backoff_delay": job.Backoff.Delay.Milliseconds(),
			"state":         string(StateWaiting),
			"created_at":    job.CreatedAt.UnixMilli(),
		})
		pipe.LPush(ctx, q.key("wait"), job.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add job %s: %w", name, err)
	}

	return job, nil
}

var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
  redis.call('HSET', ARGV[2] .. id, 'state', 'waiting')
end
return #ids
`)

// PromoteDelayed moves retries whose backoff has elapsed back to the wait list.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.client,
		[]string{q.key("delayed"), q.key("wait")},
		q.now().UnixMilli(), q.key("job")+":", 100,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return n, nil
}

// Reserve blocks up to timeout for the next runnable job and marks it active.
// It returns nil, nil when no job became available.
func (q *RedisQueue) Reserve(ctx context.Context, timeout time.Duration) (*Job, error) {
	if _, err := q.PromoteDelayed(ctx); err != nil {
		return nil, err
	}

	id, err := q.client.BLMove(ctx, q.key("wait"), q.key("active"), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve job: %w", err)
	}

	now := q.now()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.lockKey(id), now.UnixMilli(), q.cfg.LockTTL)
		pipe.HSet(ctx, q.jobKey(id), "state", string(StateActive), "processed_at", now.UnixMilli())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock job %s: %w", id, err)
	}

	job, err := q.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		q.client.LRem(ctx, q.key("active"), 1, id)
		q.client.Del(ctx, q.lockKey(id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks an active job as done.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	now := q.now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		pipe.HSet(ctx, q.jobKey(job.ID), "state", string(StateCompleted), "finished_at", now.UnixMilli())
		pipe.Del(ctx, q.lockKey(job.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	job.State = StateCompleted
	job.FinishedAt = &now
	return nil
}

// Fail records a failed attempt. While attempts remain the job is delayed by
// its backoff; otherwise it moves to the failed set for inspection. The
// returned bool reports whether the failure was terminal.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (bool, error) {
	now := q.now()
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	made := job.AttemptsMade + 1
	terminal := made >= job.Attempts

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.key("active"), 1, job.ID)
		pipe.Del(ctx, q.lockKey(job.ID))
		if terminal {
			pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
			pipe.HSet(ctx, q.jobKey(job.ID),
				"state", string(StateFailed),
				"attempts_made", made,
				"failed_reason", reason,
				"finished_at", now.UnixMilli(),
			)
			return nil
		}
		due := now.Add(job.Backoff.Next(made))
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		pipe.HSet(ctx, q.jobKey(job.ID),
			"state", string(StateDelayed),
			"attempts_made", made,
			"failed_reason", reason,
		)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure of job %s: %w", job.ID, err)
	}

	job.AttemptsMade = made
	job.FailedReason = reason
	if terminal {
		job.State = StateFailed
		job.FinishedAt = &now
	} else {
		job.State = StateDelayed
	}
	return terminal, nil
}

var recoverScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local n = 0
for _, id in ipairs(ids) do
  if redis.call('EXISTS', ARGV[1] .. 'lock:' .. id) == 0 then
    redis.call('LREM', KEYS[1], 1, id)
    redis.call('RPUSH', KEYS[2], id)
    redis.call('HSET', ARGV[1] .. 'job:' .. id, 'state', 'waiting')
    n = n + 1
  end
end
return n
`)

// RecoverStalled requeues active jobs whose lock expired, i.e. whose worker
// died mid-flight. Recovered jobs run again at the front of the queue.
func (q *RedisQueue) RecoverStalled(ctx context.Context) (int, error) {
	n, err := recoverScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("wait")},
		q.prefix,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}
	return n, nil
}

// Clean applies the retention policy and returns the number of removed jobs.
func (q *RedisQueue) Clean(ctx context.Context, r Retention) (int, error) {
	now := q.now()
	removed := 0

	if r.CompletedAge > 0 {
		n, err := q.removeOlderThan(ctx, q.key("completed"), now.Add(-r.CompletedAge))
		if err != nil {
			return removed, err
		}
		removed += n
	}

	if r.CompletedCount > 0 {
		card, err := q.client.ZCard(ctx, q.key("completed")).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to count completed jobs: %w", err)
		}
		if excess := card - int64(r.CompletedCount); excess > 0 {
			ids, err := q.client.ZRange(ctx, q.key("completed"), 0, excess-1).Result()
			if err != nil {
				return removed, fmt.Errorf("failed to list completed jobs: %w", err)
			}
			if err := q.removeJobs(ctx, q.key("completed"), ids); err != nil {
				return removed, err
			}
			removed += len(ids)
		}
	}

	if r.FailedAge > 0 {
		n, err := q.removeOlderThan(ctx, q.key("failed"), now.Add(-r.FailedAge))
		if err != nil {
			return removed, err
		}
		removed += n
	}

	return removed, nil
}

func (q *RedisQueue) removeOlderThan(ctx context.Context, set string, cutoff time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs in %s: %w", set, err)
	}
	if err := q.removeJobs(ctx, set, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (q *RedisQueue) removeJobs(ctx context.Context, set string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		keys[i] = q.jobKey(id)
	}

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, set, members...)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove jobs from %s: %w", set, err)
	}
	return nil
}

// Failed lists terminally failed jobs, most recent first.
func (q *RedisQueue) Failed(ctx context.Context, offset, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := q.client.ZRevRange(ctx, q.key("failed"), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Counts reports the number of jobs in every state.
func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.client.Pipeline()
	wait := pipe.LLen(ctx, q.key("wait"))
	active := pipe.LLen(ctx, q.key("active"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	return Counts{
		StateWaiting:   wait.Val(),
		StateActive:    active.Val(),
		StateDelayed:   delayed.Val(),
		StateCompleted: completed.Val(),
		StateFailed:    failed.Val(),
	}, nil
}

// GetJob loads a job by id.
func (q *RedisQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	job := &Job{
		ID:           id,
		Name:         fields["name"],
		Data:         json.RawMessage(fields["data"]),
		Attempts:     atoi(fields["attempts"]),
		AttemptsMade: atoi(fields["attempts_made"]),
		Backoff: Backoff{
			Type:  BackoffType(fields["backoff_type"]),
			Delay: time.Duration(atoi64(fields["backoff_delay"])) * time.Millisecond,
		},
		State:        State(fields["state"]),
		FailedReason: fields["failed_reason"],
		CreatedAt:    time.UnixMilli(atoi64(fields["created_at"])),
		ProcessedAt:  millis(fields["processed_at"]),
		FinishedAt:   millis(fields["finished_at"]),
	}
	return job, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func millis(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := time.UnixMilli(atoi64(s))
	return &t
}

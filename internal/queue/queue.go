package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"team-activity-pipeline/internal/redis"

	goredis "github.com/redis/go-redis/v9"
)

// promoteScript moves due members of the delayed set onto the ready list in
// one atomic step so two promoters never duplicate a job.
var promoteScript = goredis.NewScript(`
local jobs = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, job in ipairs(jobs) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('RPUSH', KEYS[2], job)
end
return #jobs
`)

// releaseScript deletes a lock only if it is still held by the given owner
var releaseScript = goredis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

const promoteBatch = 100

// Queue wraps Redis operations for job queue
type Queue struct {
	redis     *redis.Client
	queueName string // e.g. "pipeline_jobs"
}

// NewQueue creates a queue instance
func NewQueue(redis *redis.Client, queueName string) *Queue {
	return &Queue{
		redis:     redis,
		queueName: queueName,
	}
}

func (q *Queue) delayedKey() string { return q.queueName + ":delayed" }
func (q *Queue) deadKey() string    { return q.queueName + ":dead" }

// Push adds a job to the ready list (RPUSH)
func (q *Queue) Push(ctx context.Context, job *Job) error {
	return q.redis.RPush(ctx, q.queueName, job).Err()
}

// PushDelayed schedules a job to become ready after delay
func (q *Queue) PushDelayed(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Push(ctx, job)
	}
	runAt := time.Now().Add(delay).UnixMilli()
	return q.redis.ZAdd(ctx, q.delayedKey(), goredis.Z{Score: float64(runAt), Member: job}).Err()
}

// Pop removes and returns a job, waiting up to timeout. A nil job with a nil
// error means the wait timed out.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.redis.BLPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected BLPop result length: %d", len(result))
	}

	return FromJSON(result[1])
}

// PromoteDue moves delayed jobs whose time has come onto the ready list
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := promoteScript.Run(ctx, q.redis,
		[]string{q.delayedKey(), q.queueName},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}
	return n, nil
}

// PushDead parks a job that will not be retried
func (q *Queue) PushDead(ctx context.Context, job *Job) error {
	return q.redis.RPush(ctx, q.deadKey(), job).Err()
}

// Length returns queue size (LLEN)
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.queueName).Result()
}

// DelayedLength returns the number of scheduled jobs
func (q *Queue) DelayedLength(ctx context.Context) (int64, error) {
	return q.redis.ZCard(ctx, q.delayedKey()).Result()
}

// DeadLength returns the number of parked jobs
func (q *Queue) DeadLength(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.deadKey()).Result()
}

// AcquireLock takes the unique-job lock key for owner. It reports false when
// another owner holds it.
func (q *Queue) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return q.redis.SetNX(ctx, q.lockKey(key), owner, ttl).Result()
}

// ReleaseLock frees a lock previously taken by owner
func (q *Queue) ReleaseLock(ctx context.Context, key, owner string) error {
	return releaseScript.Run(ctx, q.redis, []string{q.lockKey(key)}, owner).Err()
}

func (q *Queue) lockKey(key string) string {
	return q.queueName + ":lock:" + key
}

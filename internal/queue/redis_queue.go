package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
)

// RedisQueue coordinates the ready, in-flight, and scheduled job queues in
// Redis. Jobs survive worker crashes: a dequeue takes a visibility lease,
// and leases that expire are re-scheduled for redelivery (at-least-once).
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	scheduledKey  string
	jobPrefix     string
	metaPrefix    string
	dlqKey        string
	visibilityTTL time.Duration
}

// Options tune queue behavior beyond the Redis connection.
type Options struct {
	VisibilityTimeout time.Duration
}

// New builds a queue client on top of an existing Redis connection.
func New(client *redis.Client, opts Options) *RedisQueue {
	visibility := opts.VisibilityTimeout
	if visibility == 0 {
		visibility = 60 * time.Second
	}
	return &RedisQueue{
		client:        client,
		readyKey:      "queue:ready",
		inflightKey:   "queue:inflight",
		scheduledKey:  "queue:scheduled",
		jobPrefix:     "queue:job:",
		metaPrefix:    "queue:meta:",
		dlqKey:        "queue:dlq",
		visibilityTTL: visibility,
	}
}

func (q *RedisQueue) jobKey(jobID string) string  { return q.jobPrefix + jobID }
func (q *RedisQueue) metaKey(jobID string) string { return q.metaPrefix + jobID }

// Enqueue durably stores the job body and places its id on the ready list.
// It never blocks on execution; errors here are infrastructure errors.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), body, 0)
	pipe.RPush(ctx, q.readyKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return faults.Infrastructure(err, "enqueue job %s", job.ID)
	}
	return nil
}

// DequeueWithLease pops a job id from the ready list and places it into
// in-flight with a visibility deadline, counting the delivery. An empty id
// with nil error means the queue was empty.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (string, int, error) {
	res, err := dequeueScript.Run(ctx, q.client,
		[]string{q.readyKey, q.inflightKey},
		time.Now().Add(q.visibilityTTL).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	deliveries, err := q.client.HIncrBy(ctx, q.metaKey(jobID), "deliveries", 1).Result()
	if err != nil {
		return jobID, 1, nil
	}
	return jobID, int(deliveries), nil
}

// GetJob loads a dequeued job's body.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	body, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return models.Job{}, faults.NotFound("job %s has no stored body", jobID)
	}
	if err != nil {
		return models.Job{}, faults.Infrastructure(err, "load job %s", jobID)
	}
	var job models.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return job, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a finished job from in-flight tracking along with its body
// and meta records.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.jobKey(jobID), q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims leases that timed out, moving each job into the
// scheduled set. The redelivery delay is computed per job from its delivery
// count, so a job on its third reclaim waits longer than one on its first.
// It returns the reclaimed ids.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64, delayFor func(deliveries int) time.Duration) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	counts := make([]int, len(ids))
	reads := q.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = reads.HGet(ctx, q.metaKey(id), "deliveries")
	}
	_, _ = reads.Exec(ctx)
	for i, cmd := range cmds {
		if n, err := cmd.Int(); err == nil && n > 0 {
			counts[i] = n
		} else {
			counts[i] = 1
		}
	}

	pipe := q.client.TxPipeline()
	for i, id := range ids {
		runAt := now.Add(delayFor(counts[i]))
		pipe.ZRem(ctx, q.inflightKey, id)
		pipe.ZAdd(ctx, q.scheduledKey, redis.Z{Score: float64(runAt.UnixMilli()), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// PromoteScheduled moves due scheduled jobs onto the ready list. It returns
// how many were promoted.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.scheduledKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DLQPush appends to the dead-letter queue for operational inspection,
// keeping the job body around.
func (q *RedisQueue) DLQPush(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.RPush(ctx, q.dlqKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// DLQPeek reads the oldest dead-lettered job ids.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
}

// ReadyDepth returns the length of the ready list.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)

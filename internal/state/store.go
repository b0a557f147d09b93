package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
)

// Store persists JobState records in Redis with a retention TTL, the way a
// result backend keeps task results until polled or expired. Each record is
// a hash so the progress guard can check terminal status atomically.
type Store struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

func New(client *redis.Client, retention time.Duration) *Store {
	if retention == 0 {
		retention = 24 * time.Hour
	}
	return &Store{
		client:    client,
		keyPrefix: "result:task:",
		retention: retention,
	}
}

func (s *Store) key(jobID string) string { return s.keyPrefix + jobID }

// Create writes the initial PENDING record at enqueue time.
func (s *Store) Create(ctx context.Context, jobID, kind string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(jobID),
		"status", models.StatusPending,
		"kind", kind,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.PExpire(ctx, s.key(jobID), s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return faults.Infrastructure(err, "create state for job %s", jobID)
	}
	return nil
}

// Get returns the current persisted state, or a not-found fault if the id
// is unknown or its record has expired.
func (s *Store) Get(ctx context.Context, jobID string) (models.JobState, error) {
	fields, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return models.JobState{}, err
	}
	if len(fields) == 0 {
		return models.JobState{}, faults.NotFound("no state for job %s", jobID)
	}

	st := models.JobState{
		ID:     jobID,
		Kind:   fields["kind"],
		Status: fields["status"],
		Error:  fields["error"],
	}
	if ts := fields["updated_at"]; ts != "" {
		st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	if raw := fields["progress"]; raw != "" {
		var p models.Progress
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			st.Progress = &p
		}
	}
	if raw := fields["result"]; raw != "" {
		var r models.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return models.JobState{}, fmt.Errorf("unmarshal result for job %s: %w", jobID, err)
		}
		st.Result = &r
	}
	return st, nil
}

// MarkRunning transitions PENDING -> PROGRESS. Called by the executing
// worker just before the handler runs.
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.setNonTerminal(ctx, jobID, "status", models.StatusProgress)
}

// ReportProgress overwrites the progress annotation. Late reports after a
// terminal state are ignored, not errors; the status check and the write
// run in one Lua script so pollers never observe progress on a finished job.
func (s *Store) ReportProgress(ctx context.Context, jobID, text string, percent float64) error {
	raw, err := json.Marshal(models.Progress{Status: text, Percent: percent})
	if err != nil {
		return err
	}
	return s.setNonTerminal(ctx, jobID, "progress", string(raw))
}

// SetSuccess records the terminal success state with its typed result.
// The first terminal write wins: a redelivered copy of a job that already
// finished cannot overwrite the recorded outcome.
func (s *Store) SetSuccess(ctx context.Context, jobID string, result models.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.setTerminal(ctx, jobID, models.StatusSuccess, "result", string(raw))
}

// SetFailure records the terminal failure state with a short description.
// Internal stack traces never reach pollers, only this string. Like
// SetSuccess, it loses silently against an earlier terminal write.
func (s *Store) SetFailure(ctx context.Context, jobID, description string) error {
	return s.setTerminal(ctx, jobID, models.StatusFailure, "error", description)
}

func (s *Store) setTerminal(ctx context.Context, jobID, status, field, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return terminalSetScript.Run(ctx, s.client,
		[]string{s.key(jobID)},
		status, field, value, now, s.retention.Milliseconds(),
	).Err()
}

func (s *Store) setNonTerminal(ctx context.Context, jobID, field, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return nonTerminalSetScript.Run(ctx, s.client,
		[]string{s.key(jobID)},
		field, value, now, s.retention.Milliseconds(),
	).Err()
}

// Writes a terminal status with its payload field only while the record is
// not already terminal. Transitions are monotonic, so whichever worker
// finishes first owns the outcome.
var terminalSetScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'SUCCESS' or status == 'FAILURE' then return 0 end
redis.call('HSET', KEYS[1], 'status', ARGV[1], ARGV[2], ARGV[3], 'updated_at', ARGV[4])
if ARGV[1] == 'SUCCESS' then
  redis.call('HDEL', KEYS[1], 'error')
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// Sets a field (plus status PROGRESS for progress writes) only while the
// record is not terminal. A missing record is left missing.
var nonTerminalSetScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then return 0 end
if status == 'SUCCESS' or status == 'FAILURE' then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2], 'updated_at', ARGV[3])
if ARGV[1] == 'progress' then
  redis.call('HSET', KEYS[1], 'status', 'PROGRESS')
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

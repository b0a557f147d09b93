package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/queue"
	"content-tasks/internal/state"
	"content-tasks/internal/telemetry"
)

// Dispatcher decouples job submission from execution: Submit enqueues
// durably and returns, Await blocks up to a ceiling, Poll reads the
// persisted state. Workers report back through the shared state store, so
// a caller that stops waiting can still retrieve the result later.
type Dispatcher struct {
	queue        *queue.RedisQueue
	state        *state.Store
	pollInterval time.Duration
}

func New(q *queue.RedisQueue, st *state.Store) *Dispatcher {
	return &Dispatcher{
		queue:        q,
		state:        st,
		pollInterval: 200 * time.Millisecond,
	}
}

// Submit validates the payload, persists a PENDING state, and enqueues the
// job. It fails only on bad input or an unreachable backend, never on
// anything about the job's eventual execution.
func (d *Dispatcher) Submit(ctx context.Context, kind string, payload models.Payload) (string, error) {
	if err := payload.Validate(kind); err != nil {
		return "", err
	}

	job := models.Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     payload,
		SubmittedAt: time.Now().UTC(),
	}

	if err := d.state.Create(ctx, job.ID, kind); err != nil {
		return "", err
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return "", err
	}
	telemetry.EnqueueCounter.WithLabelValues(kind).Inc()
	return job.ID, nil
}

// Poll returns the current persisted state without blocking.
func (d *Dispatcher) Poll(ctx context.Context, jobID string) (models.JobState, error) {
	return d.state.Get(ctx, jobID)
}

// Await blocks until the job reaches a terminal state or the timeout
// elapses. A timeout is a distinct fault, not a job failure: the job keeps
// running and its result stays retrievable via Poll.
func (d *Dispatcher) Await(ctx context.Context, jobID string, timeout time.Duration) (models.JobState, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		st, err := d.state.Get(ctx, jobID)
		if err != nil {
			return models.JobState{}, err
		}
		if models.IsTerminal(st.Status) {
			return st, nil
		}
		if time.Now().After(deadline) {
			return models.JobState{}, faults.ErrAwaitTimeout
		}
		select {
		case <-ctx.Done():
			return models.JobState{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReportProgress is called by the executing worker only. Reports against a
// job that already finished are dropped silently.
func (d *Dispatcher) ReportProgress(ctx context.Context, jobID, text string, percent float64) error {
	return d.state.ReportProgress(ctx, jobID, text, percent)
}

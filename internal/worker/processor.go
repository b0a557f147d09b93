package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"content-tasks/internal/config"
	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/queue"
	"content-tasks/internal/state"
	"content-tasks/internal/telemetry"
)

// HandlerFunc executes a job of one kind and returns its typed result.
type HandlerFunc func(ctx context.Context, job models.Job) (models.Result, error)

// Processor drives the worker execution loop: a pool of slots pulls jobs
// from the durable queue, runs the matching handler, and records the
// terminal state. A handler error is terminal FAILURE; redelivery happens
// only when a lease expires because a worker died mid-job.
type Processor struct {
	cfg      config.Config
	queue    *queue.RedisQueue
	state    *state.Store
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

func NewProcessor(cfg config.Config, q *queue.RedisQueue, st *state.Store, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		queue:    q,
		state:    st,
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// RegisterHandler binds a handler to a job kind.
func (p *Processor) RegisterHandler(kind string, handler HandlerFunc) {
	if kind == "" || handler == nil {
		return
	}
	p.handlers[kind] = handler
}

// Run starts the worker slots and the housekeeping loop, blocking until
// context cancellation.
func (p *Processor) Run(ctx context.Context) error {
	concurrency := p.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.housekeeping(ctx)
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runSlot(ctx, slot)
		}(i)
	}

	wg.Wait()
	return ctx.Err()
}

// housekeeping promotes due scheduled jobs, reclaims expired leases, and
// keeps the depth gauge current.
func (p *Processor) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.housekeepTick(ctx, time.Now())
	}
}

func (p *Processor) housekeepTick(ctx context.Context, now time.Time) {
	_, _ = p.queue.PromoteScheduled(ctx, now, 100)

	delayFor := func(deliveries int) time.Duration {
		return backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, deliveries)
	}
	if reclaimed, err := p.queue.RequeueExpired(ctx, now, 100, delayFor); err == nil && len(reclaimed) > 0 {
		p.log.Warn("reclaimed expired leases", "count", len(reclaimed))
	}

	if depth, err := p.queue.ReadyDepth(ctx); err == nil {
		telemetry.QueueDepthGauge.Set(float64(depth))
	}
}

func (p *Processor) runSlot(ctx context.Context, slot int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, deliveries, err := p.queue.DequeueWithLease(ctx)
		if err != nil || jobID == "" {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.cfg.WorkerPollInterval):
			}
			continue
		}

		p.process(ctx, jobID, deliveries, slot)
	}
}

func (p *Processor) process(ctx context.Context, jobID string, deliveries, slot int) {
	if max := p.cfg.MaxDeliveries; max > 0 && deliveries > max {
		// Crash-looping job: stop redelivering, park it for an operator.
		// A job that already reached a terminal state (worker died after
		// recording it but before acking) just gets cleaned up.
		if st, err := p.state.Get(ctx, jobID); err == nil && models.IsTerminal(st.Status) {
			_ = p.queue.Ack(ctx, jobID)
			return
		}
		p.log.Error("job exceeded delivery limit, dead-lettering",
			"job_id", jobID, "deliveries", deliveries)
		_ = p.state.SetFailure(ctx, jobID, fmt.Sprintf("delivery limit reached after %d attempts", deliveries))
		_ = p.queue.DLQPush(ctx, jobID)
		telemetry.JobDeadLetter.Inc()
		return
	}

	job, err := p.queue.GetJob(ctx, jobID)
	if err != nil {
		if faults.IsInfrastructure(err) {
			// Transient Redis trouble: keep the lease so expiry redelivers.
			return
		}
		// Body gone (acked elsewhere or expired); nothing left to run.
		_ = p.queue.Ack(ctx, jobID)
		return
	}

	_ = p.state.MarkRunning(ctx, jobID)
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	log := p.log.With("job_id", jobID, "kind", job.Kind, "slot", slot)
	start := time.Now()

	result, err := p.runHandler(ctx, job)
	if err != nil {
		// Every enqueued job reaches a terminal state: the job's own
		// failure is recorded, never re-raised out of the loop.
		log.Error("job failed", "duration", time.Since(start), "error", err)
		_ = p.state.SetFailure(ctx, jobID, err.Error())
		_ = p.queue.Ack(ctx, jobID)
		telemetry.JobFailure.WithLabelValues(job.Kind).Inc()
		return
	}

	_ = p.state.SetSuccess(ctx, jobID, result)
	_ = p.queue.Ack(ctx, jobID)
	telemetry.JobSuccess.WithLabelValues(job.Kind).Inc()
	log.Info("job succeeded", "duration", time.Since(start))
}

// runHandler validates, dispatches, and converts panics into errors so a
// broken handler can never leave its job stuck in PROGRESS.
func (p *Processor) runHandler(ctx context.Context, job models.Job) (result models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	if err := job.Payload.Validate(job.Kind); err != nil {
		return models.Result{}, err
	}
	handler, ok := p.handlers[job.Kind]
	if !ok {
		return models.Result{}, fmt.Errorf("no handler registered for kind %q", job.Kind)
	}
	return handler(ctx, job)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max <= 0 {
		max = 5 * time.Minute
	}
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max {
		wait = max
	}
	jitter := time.Duration(rand.Int63n(int64(wait/2) + 1))
	return wait/2 + jitter
}

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/queue"
	"content-tasks/internal/state"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *queue.RedisQueue, *state.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(client, queue.Options{VisibilityTimeout: time.Minute})
	st := state.New(client, time.Hour)
	return New(q, st), q, st
}

func TestSubmitCreatesPendingState(t *testing.T) {
	ctx := context.Background()
	d, q, _ := newTestDispatcher(t)

	id, err := d.Submit(ctx, models.KindInvalidateMarkdown, models.Payload{
		Invalidate: &models.InvalidatePayload{PostID: "post-1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	st, err := d.Poll(ctx, id)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if st.Status != models.StatusPending {
		t.Fatalf("expected PENDING, got %s", st.Status)
	}

	depth, _ := q.ReadyDepth(ctx)
	if depth != 1 {
		t.Fatalf("expected job on ready queue, depth=%d", depth)
	}
}

func TestSubmitRejectsBadPayloadBeforeEnqueue(t *testing.T) {
	ctx := context.Background()
	d, q, _ := newTestDispatcher(t)

	_, err := d.Submit(ctx, models.KindUploadProfileImage, models.Payload{
		ProfileImage: &models.ProfileImagePayload{UserID: "not-a-uuid", ImageURL: "https://example.com/a.png"},
	})
	if !faults.IsValidation(err) {
		t.Fatalf("expected validation fault, got %v", err)
	}

	depth, _ := q.ReadyDepth(ctx)
	if depth != 0 {
		t.Fatalf("rejected submission reached the queue, depth=%d", depth)
	}
}

func TestAwaitTimesOutWhileJobRuns(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	id, err := d.Submit(ctx, models.KindInvalidateMarkdown, models.Payload{
		Invalidate: &models.InvalidatePayload{PostID: "post-1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = d.Await(ctx, id, 300*time.Millisecond)
	if !errors.Is(err, faults.ErrAwaitTimeout) {
		t.Fatalf("expected await timeout, got %v", err)
	}

	// The job survives an abandoned wait.
	st, err := d.Poll(ctx, id)
	if err != nil {
		t.Fatalf("poll after timeout: %v", err)
	}
	if st.Status != models.StatusPending {
		t.Fatalf("status changed by timeout: %s", st.Status)
	}
}

func TestAwaitReturnsTerminalState(t *testing.T) {
	ctx := context.Background()
	d, _, store := newTestDispatcher(t)

	id, err := d.Submit(ctx, models.KindInvalidateMarkdown, models.Payload{
		Invalidate: &models.InvalidatePayload{PostID: "post-1"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = store.SetSuccess(context.Background(), id, models.Result{
			Invalidate: &models.InvalidateResult{Deleted: true},
		})
	}()

	st, err := d.Await(ctx, id, 5*time.Second)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if st.Status != models.StatusSuccess || st.Result == nil || !st.Result.Invalidate.Deleted {
		t.Fatalf("unexpected awaited state: %+v", st)
	}
}

func TestAwaitUnknownJob(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t)

	_, err := d.Await(ctx, "unknown", time.Second)
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not-found fault, got %v", err)
	}
}

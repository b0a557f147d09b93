package state

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, time.Hour)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Create(ctx, "job-1", models.KindRenderMarkdown); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != models.StatusPending || s.Kind != models.KindRenderMarkdown {
		t.Fatalf("unexpected initial state: %+v", s)
	}

	if err := st.MarkRunning(ctx, "job-1"); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := st.ReportProgress(ctx, "job-1", "rendering", 50); err != nil {
		t.Fatalf("report progress: %v", err)
	}

	s, _ = st.Get(ctx, "job-1")
	if s.Status != models.StatusProgress {
		t.Fatalf("expected PROGRESS, got %s", s.Status)
	}
	if s.Progress == nil || s.Progress.Percent != 50 {
		t.Fatalf("progress not persisted: %+v", s.Progress)
	}

	result := models.Result{Render: &models.RenderResult{HTMLContent: "<p>hi</p>"}}
	if err := st.SetSuccess(ctx, "job-1", result); err != nil {
		t.Fatalf("set success: %v", err)
	}

	s, _ = st.Get(ctx, "job-1")
	if s.Status != models.StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", s.Status)
	}
	if s.Result == nil || s.Result.Render == nil || s.Result.Render.HTMLContent != "<p>hi</p>" {
		t.Fatalf("result not persisted: %+v", s.Result)
	}
}

func TestProgressAfterTerminalIsDropped(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Create(ctx, "job-1", models.KindRenderMarkdown); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetFailure(ctx, "job-1", "renderer unreachable"); err != nil {
		t.Fatalf("set failure: %v", err)
	}

	// Late report from a worker that lost the race with lease expiry.
	if err := st.ReportProgress(ctx, "job-1", "still going", 90); err != nil {
		t.Fatalf("late report should be a silent no-op, got %v", err)
	}

	s, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != models.StatusFailure {
		t.Fatalf("terminal status overwritten: %s", s.Status)
	}
	if s.Progress != nil {
		t.Fatalf("progress written after terminal state: %+v", s.Progress)
	}
	if s.Error != "renderer unreachable" {
		t.Fatalf("error lost: %q", s.Error)
	}
}

func TestFirstTerminalWriteWins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Create(ctx, "job-1", models.KindRenderMarkdown); err != nil {
		t.Fatalf("create: %v", err)
	}
	result := models.Result{Render: &models.RenderResult{HTMLContent: "<p>done</p>"}}
	if err := st.SetSuccess(ctx, "job-1", result); err != nil {
		t.Fatalf("set success: %v", err)
	}

	// A redelivered copy losing the race must not flip the outcome.
	if err := st.SetFailure(ctx, "job-1", "delivery limit reached after 4 attempts"); err != nil {
		t.Fatalf("late failure write: %v", err)
	}

	s, err := st.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Status != models.StatusSuccess {
		t.Fatalf("recorded SUCCESS overwritten to %s", s.Status)
	}
	if s.Result == nil || s.Result.Render.HTMLContent != "<p>done</p>" {
		t.Fatalf("result lost: %+v", s.Result)
	}
	if s.Error != "" {
		t.Fatalf("stray error on successful job: %q", s.Error)
	}
}

func TestFailureIsFinalAgainstLateSuccess(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Create(ctx, "job-1", models.KindRenderMarkdown); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.SetFailure(ctx, "job-1", "renderer unreachable"); err != nil {
		t.Fatalf("set failure: %v", err)
	}
	if err := st.SetSuccess(ctx, "job-1", models.Result{Render: &models.RenderResult{HTMLContent: "<p>late</p>"}}); err != nil {
		t.Fatalf("late success write: %v", err)
	}

	s, _ := st.Get(ctx, "job-1")
	if s.Status != models.StatusFailure || s.Error != "renderer unreachable" {
		t.Fatalf("recorded FAILURE overwritten: %+v", s)
	}
	if s.Result != nil {
		t.Fatalf("late result leaked in: %+v", s.Result)
	}
}

func TestGetUnknownJob(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.Get(ctx, "nope")
	if faults.KindOf(err) != faults.KindNotFound {
		t.Fatalf("expected not-found fault, got %v", err)
	}
}

func TestSuccessClearsError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Create(ctx, "job-1", models.KindCleanupTokens); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Terminal states are final; this only checks that a success written
	// over a fresh record carries no stale error field.
	if err := st.SetSuccess(ctx, "job-1", models.Result{Cleanup: &models.CleanupResult{ExpiredCount: 3}}); err != nil {
		t.Fatalf("set success: %v", err)
	}
	s, _ := st.Get(ctx, "job-1")
	if s.Error != "" {
		t.Fatalf("unexpected error on success: %q", s.Error)
	}
	if s.Result.Cleanup.ExpiredCount != 3 {
		t.Fatalf("cleanup result lost: %+v", s.Result)
	}
}

package rendercache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"content-tasks/internal/models"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	if _, hit, err := c.Get(ctx, "post-1"); err != nil || hit {
		t.Fatalf("expected clean miss, hit=%v err=%v", hit, err)
	}

	in := models.RenderResult{HTMLContent: "<p>hi</p>", TOCItems: []byte(`[{"level":1}]`)}
	if err := c.Set(ctx, "post-1", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	out, hit, err := c.Get(ctx, "post-1")
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if out.HTMLContent != in.HTMLContent {
		t.Fatalf("html lost: %q", out.HTMLContent)
	}
	if out.CacheKey != Key("post-1") {
		t.Fatalf("cache key not set on read: %q", out.CacheKey)
	}
}

func TestEntryExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	if err := c.Set(ctx, "post-1", models.RenderResult{HTMLContent: "<p>hi</p>"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, hit, err := c.Get(ctx, "post-1"); err != nil || hit {
		t.Fatalf("expected expired miss, hit=%v err=%v", hit, err)
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	// Absent key: success, nothing removed.
	deleted, err := c.Invalidate(ctx, "post-1")
	if err != nil || deleted {
		t.Fatalf("expected clean no-op, deleted=%v err=%v", deleted, err)
	}

	if err := c.Set(ctx, "post-1", models.RenderResult{HTMLContent: "<p>hi</p>"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	deleted, err = c.Invalidate(ctx, "post-1")
	if err != nil || !deleted {
		t.Fatalf("expected removal, deleted=%v err=%v", deleted, err)
	}
}

func TestKeyShape(t *testing.T) {
	if got := Key("abc"); got != "markdown:rendered:post:abc" {
		t.Fatalf("unexpected key: %s", got)
	}
}

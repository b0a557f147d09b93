package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucket(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 2, 1, time.Minute)

	allowed, _, err := bucket.Allow(ctx, "rl:tenant")
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.Allow(ctx, "rl:tenant")
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _, _ = bucket.Allow(ctx, "rl:tenant")
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Buckets are per key: another tenant is unaffected.
	allowed, _, _ = bucket.Allow(ctx, "rl:other")
	if !allowed {
		t.Fatalf("expected fresh tenant to be allowed")
	}

	// Refill is untestable here: the script takes time from Go, not from
	// the miniredis clock, so FastForward has no effect.
}

func TestSubmitBucketSharedAcrossEndpoints(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bucket := NewTokenBucket(client, 1, 0.001, time.Minute)

	if key := SubmitKey(""); key != "ratelimit:submit:anonymous" {
		t.Fatalf("unexpected anonymous key: %q", key)
	}

	// One budget per tenant, regardless of which endpoint submits.
	allowed, _, err := bucket.AllowSubmit(ctx, "tenant-1")
	if err != nil || !allowed {
		t.Fatalf("first submission should pass, got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = bucket.AllowSubmit(ctx, "tenant-1")
	if allowed {
		t.Fatalf("second submission should spend from the same bucket")
	}
	allowed, _, _ = bucket.AllowSubmit(ctx, "tenant-2")
	if !allowed {
		t.Fatalf("another tenant has its own budget")
	}
}

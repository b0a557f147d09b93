package rendercache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"content-tasks/internal/models"
)

// DefaultTTL is used when a caller does not specify one. Post content
// changes rarely, so a day is a comfortable default.
const DefaultTTL = 24 * time.Hour

// Cache memoizes successful markdown renders in Redis, keyed by content
// identity. An entry present in the cache is always a complete render:
// writes happen only after the renderer returned successfully.
type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Key derives the cache key from the post's identity.
func Key(postID string) string {
	return "markdown:rendered:post:" + postID
}

// Get returns the cached render for the post, with a hit flag.
func (c *Cache) Get(ctx context.Context, postID string) (models.RenderResult, bool, error) {
	raw, err := c.client.Get(ctx, Key(postID)).Bytes()
	if err == redis.Nil {
		return models.RenderResult{}, false, nil
	}
	if err != nil {
		return models.RenderResult{}, false, err
	}
	var r models.RenderResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.RenderResult{}, false, err
	}
	r.CacheKey = Key(postID)
	return r, true, nil
}

// Set stores a successful render with the given TTL (0 means DefaultTTL).
func (c *Cache) Set(ctx context.Context, postID string, r models.RenderResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(postID), raw, ttl).Err()
}

// Invalidate removes the entry for a post. Deleting an absent key is a
// success; the returned flag says whether anything was actually removed.
func (c *Cache) Invalidate(ctx context.Context, postID string) (bool, error) {
	n, err := c.client.Del(ctx, Key(postID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

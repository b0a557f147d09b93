package worker

import (
	"context"
	"fmt"
	"time"

	"content-tasks/internal/models"
	"content-tasks/internal/rendercache"
	"content-tasks/internal/telemetry"
)

// RenderMarkdown renders a post's markdown through the external service
// with read-through caching. On a hit the renderer is never called; on a
// miss the result is written through only after a fully successful render.
func (h *Handlers) RenderMarkdown(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.Markdown

	res, err := h.renderOne(ctx, job.ID, pl.PostID, pl.Content, ttlFromSeconds(pl.CacheTTL), 0, 1)
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Render: &res}, nil
}

// WarmMarkdownCache renders and caches a batch of posts sequentially,
// reporting incremental progress. Individual failures do not abort the
// batch; the aggregate reports how it went.
func (h *Handlers) WarmMarkdownCache(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.Warmup
	ttl := ttlFromSeconds(pl.CacheTTL)
	total := len(pl.Posts)

	agg := &models.WarmupResult{Total: total, Results: make([]models.WarmupItem, 0, total)}
	for i, entry := range pl.Posts {
		h.progress(ctx, job.ID,
			fmt.Sprintf("warming cache (%d/%d) post=%s", i+1, total, entry.PostID),
			float64(i+1)/float64(total)*100)

		item := models.WarmupItem{PostID: entry.PostID}
		if entry.PostID == "" || entry.Content == "" {
			item.Error = "missing post_id or content"
		} else if _, err := h.renderOne(ctx, job.ID, entry.PostID, entry.Content, ttl, i, total); err != nil {
			item.Error = err.Error()
		} else {
			item.Success = true
			item.CacheKey = rendercache.Key(entry.PostID)
		}

		if item.Success {
			agg.Successful++
		} else {
			agg.Failed++
		}
		agg.Results = append(agg.Results, item)
	}
	return models.Result{Warmup: agg}, nil
}

// InvalidateMarkdownCache drops a post's cached render. Deleting an
// absent key succeeds with a "nothing to invalidate" indicator.
func (h *Handlers) InvalidateMarkdownCache(ctx context.Context, job models.Job) (models.Result, error) {
	postID := job.Payload.Invalidate.PostID
	deleted, err := h.cache.Invalidate(ctx, postID)
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Invalidate: &models.InvalidateResult{
		CacheKey: rendercache.Key(postID),
		Deleted:  deleted,
	}}, nil
}

func (h *Handlers) renderOne(ctx context.Context, jobID, postID, content string, ttl time.Duration, index, total int) (models.RenderResult, error) {
	cached, hit, err := h.cache.Get(ctx, postID)
	if err != nil {
		return models.RenderResult{}, err
	}
	if hit {
		telemetry.CacheHits.Inc()
		cached.Cached = true
		return cached, nil
	}
	telemetry.CacheMisses.Inc()

	if total == 1 {
		h.progress(ctx, jobID, "rendering markdown", 50)
	}
	res, err := h.renderer.Render(ctx, content)
	if err != nil {
		// Never cache a failure or partial result.
		return models.RenderResult{}, err
	}

	res.CacheKey = rendercache.Key(postID)
	if err := h.cache.Set(ctx, postID, res, ttl); err != nil {
		return models.RenderResult{}, err
	}
	res.Cached = false
	return res, nil
}

func ttlFromSeconds(seconds int) time.Duration {
	if seconds <= 0 {
		return rendercache.DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}

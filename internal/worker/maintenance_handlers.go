package worker

import (
	"context"
	"fmt"
	"time"

	"content-tasks/internal/models"
	"content-tasks/internal/search"
)

// CleanupTokens purges expired and revoked refresh tokens in one sweep.
// Re-running with the same or a later "now" is harmless.
func (h *Handlers) CleanupTokens(ctx context.Context, job models.Job) (models.Result, error) {
	now := job.Payload.Cleanup.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	h.progress(ctx, job.ID, "sweeping refresh tokens", 50)
	expired, revoked, err := h.db.CleanupRefreshTokens(ctx, now)
	if err != nil {
		return models.Result{}, err
	}
	h.log.Info("token cleanup finished", "expired", expired, "revoked", revoked)
	return models.Result{Cleanup: &models.CleanupResult{
		ExpiredCount: expired,
		RevokedCount: revoked,
	}}, nil
}

// ReindexPosts pages through all posts and pushes their documents to the
// search index in batches. Failed batches are counted, not fatal.
func (h *Handlers) ReindexPosts(ctx context.Context, job models.Job) (models.Result, error) {
	batchSize := job.Payload.Reindex.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	res := &models.ReindexResult{}
	for offset := 0; ; offset += batchSize {
		posts, err := h.db.ListPosts(ctx, batchSize, offset)
		if err != nil {
			return models.Result{}, err
		}
		if len(posts) == 0 {
			break
		}

		docs := make([]search.PostDocument, 0, len(posts))
		for _, p := range posts {
			docs = append(docs, search.DocumentFromPost(p))
		}
		if err := h.index.IndexPosts(docs); err != nil {
			h.log.Warn("index batch failed", "offset", offset, "count", len(docs), "error", err)
			res.Failed += len(docs)
		} else {
			res.Indexed += len(docs)
		}

		h.progress(ctx, job.ID, fmt.Sprintf("indexed %d posts", res.Indexed+res.Failed), 0)
		if len(posts) < batchSize {
			break
		}
	}
	return models.Result{Reindex: res}, nil
}

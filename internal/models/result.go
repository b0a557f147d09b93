package models

import "encoding/json"

// Delete outcomes. PartialSuccess means exactly one of the object delete
// and the link clear went through; the structured fields say which.
const (
	OutcomeSuccess        = "SUCCESS"
	OutcomePartialSuccess = "PARTIAL_SUCCESS"
	OutcomeWarning        = "WARNING"
)

// Result is the per-kind success payload of a job. Exactly one variant
// is set; failures live in JobState.Error instead.
type Result struct {
	Upload     *UploadResult     `json:"upload,omitempty"`
	Delete     *DeleteResult     `json:"delete,omitempty"`
	Render     *RenderResult     `json:"render,omitempty"`
	Warmup     *WarmupResult     `json:"warmup,omitempty"`
	Invalidate *InvalidateResult `json:"invalidate,omitempty"`
	Cleanup    *CleanupResult    `json:"cleanup,omitempty"`
	Reindex    *ReindexResult    `json:"reindex,omitempty"`
}

type UploadResult struct {
	PublicURL string `json:"public_url"`
	Key       string `json:"key"`
}

// DeleteResult reports which halves of the delete converged. Both flags
// false with a SUCCESS outcome means there was nothing to delete.
type DeleteResult struct {
	Outcome       string `json:"outcome"`
	ObjectDeleted bool   `json:"object_deleted"`
	LinkCleared   bool   `json:"link_cleared"`
	Detail        string `json:"detail,omitempty"`
}

type RenderResult struct {
	HTMLContent string          `json:"html_content"`
	TOCItems    json.RawMessage `json:"toc_items"`
	Cached      bool            `json:"cached"`
	CacheKey    string          `json:"cache_key"`
}

type WarmupItem struct {
	PostID   string `json:"post_id"`
	CacheKey string `json:"cache_key,omitempty"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type WarmupResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Results    []WarmupItem `json:"results"`
}

type InvalidateResult struct {
	CacheKey string `json:"cache_key"`
	Deleted  bool   `json:"deleted"`
}

type CleanupResult struct {
	ExpiredCount int64 `json:"expired_count"`
	RevokedCount int64 `json:"revoked_count"`
}

type ReindexResult struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

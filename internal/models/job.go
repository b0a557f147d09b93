package models

import (
	"time"
)

// Job kinds accepted by the dispatcher.
const (
	KindUploadProfileImage    = "upload_profile_image"
	KindUploadUserFile        = "upload_user_file"
	KindDeleteUserFile        = "delete_user_file"
	KindUploadPostFile        = "upload_post_file"
	KindDeletePostFile        = "delete_post_file"
	KindGeneratePostThumbnail = "generate_post_thumbnail"
	KindRenderMarkdown        = "render_markdown"
	KindWarmMarkdownCache     = "warm_markdown_cache"
	KindInvalidateMarkdown    = "invalidate_markdown_cache"
	KindCleanupTokens         = "cleanup_tokens"
	KindReindexPosts          = "reindex_posts"
)

// Status values persisted in the state store and exposed over HTTP.
const (
	StatusPending  = "PENDING"
	StatusProgress = "PROGRESS"
	StatusSuccess  = "SUCCESS"
	StatusFailure  = "FAILURE"
)

// IsTerminal reports whether a status can no longer change.
func IsTerminal(status string) bool {
	return status == StatusSuccess || status == StatusFailure
}

// Job is one unit of asynchronous work, immutable once enqueued.
type Job struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Payload     Payload   `json:"payload"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Progress is the free-form annotation a running handler reports.
type Progress struct {
	Status  string  `json:"status"`
	Percent float64 `json:"percent"`
}

// JobState is the mutable record tracked per job id. Transitions are
// monotonic: PENDING -> PROGRESS -> {SUCCESS, FAILURE}.
type JobState struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  *Progress `json:"progress,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

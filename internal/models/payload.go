package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"content-tasks/internal/faults"
)

// File categories for stored blobs.
const (
	CategoryAvatar     = "avatar"
	CategoryBanner     = "banner"
	CategoryThumbnail  = "thumbnail"
	CategoryAttachment = "attachment"
)

// MaxImageBytes caps accepted upload payloads at 8 MiB.
const MaxImageBytes = 8 * 1024 * 1024

var supportedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

// IsSupportedImageType reports whether a content type is in the fixed
// supported set.
func IsSupportedImageType(contentType string) bool {
	_, ok := supportedImageTypes[strings.ToLower(contentType)]
	return ok
}

// Payload carries the kind-specific arguments of a job. Exactly one
// variant is set, matching the job kind.
type Payload struct {
	ProfileImage   *ProfileImagePayload   `json:"profile_image,omitempty"`
	UserFile       *UserFilePayload       `json:"user_file,omitempty"`
	DeleteUserFile *DeleteUserFilePayload `json:"delete_user_file,omitempty"`
	PostFile       *PostFilePayload       `json:"post_file,omitempty"`
	DeletePostFile *DeletePostFilePayload `json:"delete_post_file,omitempty"`
	Thumbnail      *ThumbnailPayload      `json:"thumbnail,omitempty"`
	Markdown       *MarkdownPayload       `json:"markdown,omitempty"`
	Warmup         *WarmupPayload         `json:"warmup,omitempty"`
	Invalidate     *InvalidatePayload     `json:"invalidate,omitempty"`
	Cleanup        *CleanupPayload        `json:"cleanup,omitempty"`
	Reindex        *ReindexPayload        `json:"reindex,omitempty"`
}

// ProfileImagePayload uploads an avatar fetched from an external URL
// (the OAuth provider's picture).
type ProfileImagePayload struct {
	UserID   string `json:"user_id"`
	ImageURL string `json:"image_url"`
}

// UserFilePayload uploads caller-supplied bytes as a user's avatar or banner.
type UserFilePayload struct {
	UserID      string `json:"user_id"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	Replace     bool   `json:"replace"`
}

type DeleteUserFilePayload struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
}

// PostFilePayload uploads caller-supplied bytes as a post thumbnail or
// attachment.
type PostFilePayload struct {
	PostID      string `json:"post_id"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type"`
	Category    string `json:"category"`
	Replace     bool   `json:"replace"`
}

type DeletePostFilePayload struct {
	PostID   string `json:"post_id"`
	Category string `json:"category"`
}

// ThumbnailPayload downscales a source image into a post thumbnail.
type ThumbnailPayload struct {
	PostID    string `json:"post_id"`
	SourceURL string `json:"source_url"`
	Filename  string `json:"filename"`
	MaxWidth  int    `json:"max_width"`
}

type MarkdownPayload struct {
	PostID   string `json:"post_id"`
	Content  string `json:"content"`
	CacheTTL int    `json:"cache_ttl"` // seconds, 0 means default
}

type WarmupEntry struct {
	PostID  string `json:"post_id"`
	Content string `json:"content"`
}

type WarmupPayload struct {
	Posts    []WarmupEntry `json:"posts"`
	CacheTTL int           `json:"cache_ttl"`
}

type InvalidatePayload struct {
	PostID string `json:"post_id"`
}

// CleanupPayload carries the "now" reference for the token sweep. A zero
// Now means the worker's clock at execution time.
type CleanupPayload struct {
	Now time.Time `json:"now,omitempty"`
}

type ReindexPayload struct {
	BatchSize int `json:"batch_size"`
}

// ValidateID checks that an owner identifier is a well-formed UUID.
func ValidateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return faults.Validation("malformed %s: %q", field, id)
	}
	return nil
}

func validateImageUpload(contentType string, data []byte) error {
	if !IsSupportedImageType(contentType) {
		return faults.Validation("unsupported content type: %q", contentType)
	}
	if len(data) == 0 {
		return faults.Validation("empty file payload")
	}
	if len(data) > MaxImageBytes {
		return faults.Validation("file too large: %d bytes (max %d)", len(data), MaxImageBytes)
	}
	return nil
}

func validateCategory(category string, allowed ...string) error {
	for _, a := range allowed {
		if category == a {
			return nil
		}
	}
	return faults.Validation("unsupported file category: %q", category)
}

// Validate checks the payload variant for the given kind before any I/O
// happens. Violations are validation faults, distinct from infrastructure
// errors, and are reported to the caller immediately.
func (p Payload) Validate(kind string) error {
	switch kind {
	case KindUploadProfileImage:
		if p.ProfileImage == nil {
			return faults.Validation("missing profile_image payload")
		}
		if err := ValidateID("user_id", p.ProfileImage.UserID); err != nil {
			return err
		}
		url := p.ProfileImage.ImageURL
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return faults.Validation("malformed image url: %q", url)
		}
		return nil
	case KindUploadUserFile:
		if p.UserFile == nil {
			return faults.Validation("missing user_file payload")
		}
		if err := ValidateID("user_id", p.UserFile.UserID); err != nil {
			return err
		}
		if err := validateCategory(p.UserFile.Category, CategoryAvatar, CategoryBanner); err != nil {
			return err
		}
		return validateImageUpload(p.UserFile.ContentType, p.UserFile.Data)
	case KindDeleteUserFile:
		if p.DeleteUserFile == nil {
			return faults.Validation("missing delete_user_file payload")
		}
		if err := ValidateID("user_id", p.DeleteUserFile.UserID); err != nil {
			return err
		}
		return validateCategory(p.DeleteUserFile.Category, CategoryAvatar, CategoryBanner)
	case KindUploadPostFile:
		if p.PostFile == nil {
			return faults.Validation("missing post_file payload")
		}
		if err := ValidateID("post_id", p.PostFile.PostID); err != nil {
			return err
		}
		if err := validateCategory(p.PostFile.Category, CategoryThumbnail, CategoryAttachment); err != nil {
			return err
		}
		return validateImageUpload(p.PostFile.ContentType, p.PostFile.Data)
	case KindDeletePostFile:
		if p.DeletePostFile == nil {
			return faults.Validation("missing delete_post_file payload")
		}
		if err := ValidateID("post_id", p.DeletePostFile.PostID); err != nil {
			return err
		}
		return validateCategory(p.DeletePostFile.Category, CategoryThumbnail)
	case KindGeneratePostThumbnail:
		if p.Thumbnail == nil {
			return faults.Validation("missing thumbnail payload")
		}
		if err := ValidateID("post_id", p.Thumbnail.PostID); err != nil {
			return err
		}
		if p.Thumbnail.SourceURL == "" {
			return faults.Validation("source_url is required")
		}
		return nil
	case KindRenderMarkdown:
		if p.Markdown == nil {
			return faults.Validation("missing markdown payload")
		}
		if p.Markdown.PostID == "" {
			return faults.Validation("post_id is required")
		}
		if p.Markdown.Content == "" {
			return faults.Validation("content is required")
		}
		return nil
	case KindWarmMarkdownCache:
		if p.Warmup == nil {
			return faults.Validation("missing warmup payload")
		}
		if len(p.Warmup.Posts) == 0 {
			return faults.Validation("posts list is empty")
		}
		return nil
	case KindInvalidateMarkdown:
		if p.Invalidate == nil || p.Invalidate.PostID == "" {
			return faults.Validation("post_id is required")
		}
		return nil
	case KindCleanupTokens:
		if p.Cleanup == nil {
			return faults.Validation("missing cleanup payload")
		}
		return nil
	case KindReindexPosts:
		if p.Reindex == nil {
			return faults.Validation("missing reindex payload")
		}
		return nil
	default:
		return faults.Validation("unknown job kind: %q", kind)
	}
}

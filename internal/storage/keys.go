package storage

import (
	"fmt"
	"net/url"
	"strings"

	"content-tasks/internal/models"
)

// ExtensionForContentType maps a declared image content type to the stored
// file extension. Anything outside the explicit set becomes .jpg.
func ExtensionForContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// OAuthAvatarKey is the fixed key for an avatar fetched from an OAuth
// provider; there is no caller filename to incorporate.
func OAuthAvatarKey(handle string) string {
	return fmt.Sprintf("profiles/%s/avatar", handle)
}

// UserFileKey derives the key for a user-owned file (avatar or banner).
func UserFileKey(handle, category, filename string) string {
	return fmt.Sprintf("profiles/%s/%s/%s", handle, category, filename)
}

// PostFileKey derives the key for a post-owned file (thumbnail or
// attachment), embedding the category and content-derived extension.
func PostFileKey(postID, category, filename, contentType string) string {
	return fmt.Sprintf("posts/%s/%s_%s%s", postID, category, filename, ExtensionForContentType(contentType))
}

// KeyFromURL recovers the object key from a stored public URL. Public URLs
// are always {public domain}/{key}, so the path suffix is the key; when the
// shape is unrecognized the deterministic fallback key is used instead.
func KeyFromURL(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	p := strings.TrimPrefix(u.Path, "/")
	if strings.HasPrefix(p, "profiles/") || strings.HasPrefix(p, "posts/") {
		return p
	}
	return fallback
}

// FallbackUserKey is the constructed key used when a stored user-file URL
// cannot be parsed.
func FallbackUserKey(handle, category string) string {
	return fmt.Sprintf("profiles/%s/%s", handle, category)
}

// FallbackPostKey is the constructed key used when a stored post-file URL
// cannot be parsed.
func FallbackPostKey(postID string) string {
	return fmt.Sprintf("posts/%s/%s", postID, models.CategoryThumbnail)
}

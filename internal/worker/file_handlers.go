package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"content-tasks/internal/database"
	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/storage"
)

// UploadProfileImage downloads the avatar an OAuth provider exposes and
// stores it under the user's fixed avatar key.
func (h *Handlers) UploadProfileImage(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.ProfileImage

	user, err := h.db.GetUserByID(ctx, pl.UserID)
	if err != nil {
		return models.Result{}, err
	}

	h.progress(ctx, job.ID, "downloading image from provider", 10)
	data, contentType, err := h.downloadImage(ctx, pl.ImageURL)
	if err != nil {
		return models.Result{}, err
	}
	if !models.IsSupportedImageType(contentType) {
		return models.Result{}, faults.Validation("unsupported content type: %q", contentType)
	}
	if len(data) == 0 || len(data) > models.MaxImageBytes {
		return models.Result{}, faults.Validation("image size %d out of bounds", len(data))
	}

	key := storage.OAuthAvatarKey(user.Handle)
	h.progress(ctx, job.ID, "uploading avatar", 50)
	publicURL, err := h.linkUpload(ctx, key, data, contentType, func(ctx context.Context, url *string) error {
		return h.db.UpdateUserProfileImage(ctx, user.ID, url)
	})
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Upload: &models.UploadResult{PublicURL: publicURL, Key: key}}, nil
}

// UploadUserFile stores caller-supplied bytes as the user's avatar or
// banner and links the public URL on the user row.
func (h *Handlers) UploadUserFile(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.UserFile

	user, err := h.db.GetUserByID(ctx, pl.UserID)
	if err != nil {
		return models.Result{}, err
	}

	// Replacing first removes whatever key the old URL points at, so a
	// changed filename cannot leave a second copy behind.
	if pl.Replace {
		h.progress(ctx, job.ID, fmt.Sprintf("removing previous %s", pl.Category), 10)
		if _, err := h.removeUserFile(ctx, user, pl.Category); err != nil {
			return models.Result{}, err
		}
	}

	key := storage.UserFileKey(user.Handle, pl.Category, pl.Filename)
	h.progress(ctx, job.ID, fmt.Sprintf("uploading %s", pl.Category), 50)
	publicURL, err := h.linkUpload(ctx, key, pl.Data, pl.ContentType, func(ctx context.Context, url *string) error {
		return h.updateUserImage(ctx, user.ID, pl.Category, url)
	})
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Upload: &models.UploadResult{PublicURL: publicURL, Key: key}}, nil
}

// DeleteUserFile removes a user's avatar or banner from the object store
// and clears the URL column, tolerating partial prior state.
func (h *Handlers) DeleteUserFile(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.DeleteUserFile

	user, err := h.db.GetUserByID(ctx, pl.UserID)
	if err != nil {
		// Without the record there is no way to know the current URL.
		return models.Result{}, err
	}

	res, err := h.removeUserFile(ctx, user, pl.Category)
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Delete: res}, nil
}

// UploadPostFile stores caller-supplied bytes as a post thumbnail or
// attachment. Thumbnails link back to the post row; attachments have no
// URL column and skip the link step.
func (h *Handlers) UploadPostFile(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.PostFile

	post, err := h.db.GetPostByID(ctx, pl.PostID)
	if err != nil {
		return models.Result{}, err
	}

	if pl.Replace && pl.Category == models.CategoryThumbnail {
		h.progress(ctx, job.ID, "removing previous thumbnail", 10)
		if _, err := h.removePostThumbnail(ctx, post); err != nil {
			return models.Result{}, err
		}
	}

	key := storage.PostFileKey(post.ID, pl.Category, pl.Filename, pl.ContentType)
	h.progress(ctx, job.ID, fmt.Sprintf("uploading %s", pl.Category), 50)

	if pl.Category != models.CategoryThumbnail {
		publicURL, err := h.store.Put(ctx, key, pl.Data, pl.ContentType)
		if err != nil {
			return models.Result{}, faults.Infrastructure(err, "store upload")
		}
		return models.Result{Upload: &models.UploadResult{PublicURL: publicURL, Key: key}}, nil
	}

	publicURL, err := h.linkUpload(ctx, key, pl.Data, pl.ContentType, func(ctx context.Context, url *string) error {
		return h.db.UpdatePostThumbnail(ctx, post.ID, url)
	})
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Upload: &models.UploadResult{PublicURL: publicURL, Key: key}}, nil
}

// DeletePostFile removes a post's thumbnail and clears its URL column.
func (h *Handlers) DeletePostFile(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.DeletePostFile

	post, err := h.db.GetPostByID(ctx, pl.PostID)
	if err != nil {
		return models.Result{}, err
	}

	res, err := h.removePostThumbnail(ctx, post)
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Delete: res}, nil
}

// linkUpload runs the two-step upload: put the blob, then write the URL
// column in its own transaction. A failed link deletes the just-uploaded
// object so no dangling reference survives in either direction; a failed
// compensation is logged and the original error still surfaces.
func (h *Handlers) linkUpload(ctx context.Context, key string, data []byte, contentType string, link func(context.Context, *string) error) (string, error) {
	publicURL, err := h.store.Put(ctx, key, data, contentType)
	if err != nil {
		return "", faults.Infrastructure(err, "store upload")
	}

	if err := link(ctx, &publicURL); err != nil {
		if delErr := h.store.Delete(ctx, key); delErr != nil {
			h.log.Warn("compensating delete failed, object may be orphaned",
				"key", key, "error", delErr)
		}
		return "", faults.Domain("database link failed: %v", err)
	}
	return publicURL, nil
}

func (h *Handlers) updateUserImage(ctx context.Context, userID, category string, url *string) error {
	if category == models.CategoryBanner {
		return h.db.UpdateUserBannerImage(ctx, userID, url)
	}
	return h.db.UpdateUserProfileImage(ctx, userID, url)
}

// removeUserFile converges a user file toward absent: the object delete
// and the column clear are both attempted regardless of the other's
// outcome, and one success is enough to report convergence.
func (h *Handlers) removeUserFile(ctx context.Context, user database.User, category string) (*models.DeleteResult, error) {
	current := user.ProfileImage
	if category == models.CategoryBanner {
		current = user.BannerImage
	}
	if current == nil {
		return &models.DeleteResult{Outcome: models.OutcomeSuccess, Detail: "nothing to delete"}, nil
	}

	key := storage.KeyFromURL(*current, storage.FallbackUserKey(user.Handle, category))
	objErr := h.store.Delete(ctx, key)
	linkErr := h.updateUserImage(ctx, user.ID, category, nil)
	return h.deleteOutcome(key, objErr, linkErr), nil
}

func (h *Handlers) removePostThumbnail(ctx context.Context, post database.Post) (*models.DeleteResult, error) {
	if post.ThumbnailImage == nil {
		return &models.DeleteResult{Outcome: models.OutcomeSuccess, Detail: "nothing to delete"}, nil
	}

	key := storage.KeyFromURL(*post.ThumbnailImage, storage.FallbackPostKey(post.ID))
	objErr := h.store.Delete(ctx, key)
	linkErr := h.db.UpdatePostThumbnail(ctx, post.ID, nil)
	return h.deleteOutcome(key, objErr, linkErr), nil
}

func (h *Handlers) deleteOutcome(key string, objErr, linkErr error) *models.DeleteResult {
	res := &models.DeleteResult{
		ObjectDeleted: objErr == nil,
		LinkCleared:   linkErr == nil,
	}
	switch {
	case objErr == nil && linkErr == nil:
		res.Outcome = models.OutcomeSuccess
	case objErr == nil:
		res.Outcome = models.OutcomePartialSuccess
		res.Detail = fmt.Sprintf("object %s deleted but link clear failed: %v", key, linkErr)
	case linkErr == nil:
		res.Outcome = models.OutcomePartialSuccess
		res.Detail = fmt.Sprintf("link cleared but object %s delete failed: %v", key, objErr)
	default:
		res.Outcome = models.OutcomeWarning
		res.Detail = fmt.Sprintf("object delete failed (%v) and link clear failed (%v)", objErr, linkErr)
	}
	if res.Detail != "" {
		h.log.Warn("delete did not fully converge", "key", key, "detail", res.Detail)
	}
	return res
}

// downloadImage fetches the remote image with the configured ceiling and
// returns its bytes plus declared content type.
func (h *Handlers) downloadImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", faults.Validation("malformed image url: %v", err)
	}
	resp, err := h.download.Do(req)
	if err != nil {
		return nil, "", faults.Domain("image download failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", faults.Domain("image download failed: status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, int64(models.MaxImageBytes)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", faults.Domain("read image: %v", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

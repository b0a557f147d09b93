package worker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/storage"
)

// GeneratePostThumbnail downloads a source image, downscales it, and
// stores the result at the post's thumbnail key with a DB link.
func (h *Handlers) GeneratePostThumbnail(ctx context.Context, job models.Job) (models.Result, error) {
	pl := job.Payload.Thumbnail

	post, err := h.db.GetPostByID(ctx, pl.PostID)
	if err != nil {
		return models.Result{}, err
	}

	h.progress(ctx, job.ID, "downloading source image", 10)
	data, _, err := h.downloadImage(ctx, pl.SourceURL)
	if err != nil {
		return models.Result{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Result{}, faults.Domain("decode source image: %v", err)
	}

	maxWidth := pl.MaxWidth
	if maxWidth <= 0 {
		maxWidth = h.cfg.ThumbnailMaxWidth
	}
	if maxWidth <= 0 {
		maxWidth = 1200
	}
	if img.Bounds().Dx() > maxWidth {
		// Height 0 preserves the aspect ratio.
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	h.progress(ctx, job.ID, "encoding thumbnail", 40)
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return models.Result{}, fmt.Errorf("encode thumbnail: %w", err)
	}

	filename := pl.Filename
	if filename == "" {
		filename = "generated"
	}
	key := storage.PostFileKey(post.ID, models.CategoryThumbnail, filename, "image/jpeg")

	h.progress(ctx, job.ID, "uploading thumbnail", 70)
	publicURL, err := h.linkUpload(ctx, key, buf.Bytes(), "image/jpeg", func(ctx context.Context, url *string) error {
		return h.db.UpdatePostThumbnail(ctx, post.ID, url)
	})
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Upload: &models.UploadResult{PublicURL: publicURL, Key: key}}, nil
}

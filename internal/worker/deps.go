package worker

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"content-tasks/internal/config"
	"content-tasks/internal/database"
	"content-tasks/internal/models"
	"content-tasks/internal/search"
)

// ObjectStore is the slice of the object-store client the handlers need.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// DataGateway is the slice of the relational gateway the handlers need.
type DataGateway interface {
	GetUserByID(ctx context.Context, id string) (database.User, error)
	UpdateUserProfileImage(ctx context.Context, id string, url *string) error
	UpdateUserBannerImage(ctx context.Context, id string, url *string) error
	GetPostByID(ctx context.Context, id string) (database.Post, error)
	UpdatePostThumbnail(ctx context.Context, id string, url *string) error
	CleanupRefreshTokens(ctx context.Context, now time.Time) (expired, revoked int64, err error)
	ListPosts(ctx context.Context, limit, offset int) ([]database.Post, error)
}

// Renderer calls the external markdown service.
type Renderer interface {
	Render(ctx context.Context, content string) (models.RenderResult, error)
}

// RenderCache memoizes successful renders.
type RenderCache interface {
	Get(ctx context.Context, postID string) (models.RenderResult, bool, error)
	Set(ctx context.Context, postID string, r models.RenderResult, ttl time.Duration) error
	Invalidate(ctx context.Context, postID string) (bool, error)
}

// SearchIndex receives post documents; write-only from this service.
type SearchIndex interface {
	IndexPosts(docs []search.PostDocument) error
}

// ProgressFunc lets a running handler overwrite its job's progress
// annotation. Reports after the job finished are dropped by the store.
type ProgressFunc func(ctx context.Context, jobID, text string, percent float64)

// Handlers bundles every job handler with its injected collaborators.
// Clients are constructed once at process start and passed in, so tests
// can substitute fakes.
type Handlers struct {
	cfg      config.Config
	store    ObjectStore
	db       DataGateway
	renderer Renderer
	cache    RenderCache
	index    SearchIndex
	progress ProgressFunc
	download *http.Client
	log      *slog.Logger
}

func NewHandlers(cfg config.Config, store ObjectStore, db DataGateway, renderer Renderer, cache RenderCache, index SearchIndex, progress ProgressFunc, log *slog.Logger) *Handlers {
	timeout := cfg.DownloadTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if progress == nil {
		progress = func(context.Context, string, string, float64) {}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		cfg:      cfg,
		store:    store,
		db:       db,
		renderer: renderer,
		cache:    cache,
		index:    index,
		progress: progress,
		download: &http.Client{Timeout: timeout},
		log:      log,
	}
}

// RegisterAll binds every handler to its job kind on the processor.
func (h *Handlers) RegisterAll(p *Processor) {
	p.RegisterHandler(models.KindUploadProfileImage, h.UploadProfileImage)
	p.RegisterHandler(models.KindUploadUserFile, h.UploadUserFile)
	p.RegisterHandler(models.KindDeleteUserFile, h.DeleteUserFile)
	p.RegisterHandler(models.KindUploadPostFile, h.UploadPostFile)
	p.RegisterHandler(models.KindDeletePostFile, h.DeletePostFile)
	p.RegisterHandler(models.KindGeneratePostThumbnail, h.GeneratePostThumbnail)
	p.RegisterHandler(models.KindRenderMarkdown, h.RenderMarkdown)
	p.RegisterHandler(models.KindWarmMarkdownCache, h.WarmMarkdownCache)
	p.RegisterHandler(models.KindInvalidateMarkdown, h.InvalidateMarkdownCache)
	p.RegisterHandler(models.KindCleanupTokens, h.CleanupTokens)
	p.RegisterHandler(models.KindReindexPosts, h.ReindexPosts)
}

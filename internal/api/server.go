package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"content-tasks/internal/config"
	"content-tasks/internal/dispatch"
	"content-tasks/internal/faults"
	"content-tasks/internal/models"
	"content-tasks/internal/queue"
	"content-tasks/internal/ratelimit"
	"content-tasks/internal/rendercache"
	"content-tasks/internal/telemetry"
)

// Server wires HTTP handlers for the task submission API. Submissions
// validate synchronously and return a task id; execution happens on the
// worker fleet and is observed via GET /tasks/{id}.
type Server struct {
	cfg        config.Config
	dispatcher *dispatch.Dispatcher
	queue      *queue.RedisQueue
	cache      *rendercache.Cache
	limiter    *ratelimit.TokenBucket
}

// New constructs the API server.
func New(cfg config.Config, d *dispatch.Dispatcher, q *queue.RedisQueue, cache *rendercache.Cache, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		queue:      q,
		cache:      cache,
		limiter:    limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/tasks/profile/image", s.handleUploadProfileImage)
	r.Delete("/tasks/profile/image", s.handleDeleteProfileImage)
	r.Post("/tasks/profile/file", s.handleUploadUserFile)
	r.Delete("/tasks/profile/file", s.handleDeleteUserFile)
	r.Post("/tasks/post/file", s.handleUploadPostFile)
	r.Delete("/tasks/post/file", s.handleDeletePostFile)
	r.Post("/tasks/post/thumbnail/generate", s.handleGenerateThumbnail)
	r.Post("/tasks/markdown/render", s.handleRenderMarkdown)
	r.Post("/tasks/markdown/render-async", s.handleRenderMarkdownAsync)
	r.Post("/tasks/markdown/invalidate", s.handleInvalidateMarkdown)
	r.Post("/tasks/markdown/warm-up", s.handleWarmMarkdownCache)
	r.Post("/tasks/maintenance/cleanup-tokens", s.handleCleanupTokens)
	r.Post("/tasks/maintenance/reindex", s.handleReindexPosts)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Get("/dlq", s.handleDLQ)
	return r
}

type submitResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// renderResponse is the synchronous render envelope. Both the cache
// short-circuit and an awaited render answer in this one shape.
type renderResponse struct {
	Success  bool        `json:"success"`
	Data     *renderData `json:"data,omitempty"`
	Cached   bool        `json:"cached"`
	CacheKey string      `json:"cache_key,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type renderData struct {
	HTMLContent string          `json:"html_content"`
	TOCItems    json.RawMessage `json:"toc_items"`
}

func renderEnvelope(r models.RenderResult) renderResponse {
	return renderResponse{
		Success:  true,
		Data:     &renderData{HTMLContent: r.HTMLContent, TOCItems: r.TOCItems},
		Cached:   r.Cached,
		CacheKey: r.CacheKey,
	}
}

type taskStatusResponse struct {
	TaskID   string           `json:"task_id"`
	Kind     string           `json:"kind"`
	Status   string           `json:"status"`
	Progress *models.Progress `json:"progress,omitempty"`
	Result   *models.Result   `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// submit runs the shared submission path: tenant rate limit, dispatch,
// 202 with the task id.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind string, payload models.Payload, message string) {
	if !s.allow(w, r) {
		return
	}
	id, err := s.dispatcher.Submit(r.Context(), kind, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID:  id,
		Status:  models.StatusPending,
		Message: message,
	})
}

func (s *Server) allow(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, _, err := s.limiter.AllowSubmit(r.Context(), tenantFromRequest(r))
	if err != nil {
		http.Error(w, "rate limit error", http.StatusInternalServerError)
		return false
	}
	if !allowed {
		telemetry.RateLimitRejects.Inc()
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) handleUploadProfileImage(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileImagePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindUploadProfileImage,
		models.Payload{ProfileImage: &req},
		"profile image upload queued")
}

// handleDeleteProfileImage removes the avatar regardless of how it was
// uploaded; the worker derives the key from the stored URL.
func (s *Server) handleDeleteProfileImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindDeleteUserFile,
		models.Payload{DeleteUserFile: &models.DeleteUserFilePayload{
			UserID:   req.UserID,
			Category: models.CategoryAvatar,
		}},
		"avatar deletion queued")
}

func (s *Server) handleUploadUserFile(w http.ResponseWriter, r *http.Request) {
	var req models.UserFilePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindUploadUserFile,
		models.Payload{UserFile: &req},
		"file upload queued")
}

func (s *Server) handleDeleteUserFile(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteUserFilePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindDeleteUserFile,
		models.Payload{DeleteUserFile: &req},
		"file deletion queued")
}

func (s *Server) handleUploadPostFile(w http.ResponseWriter, r *http.Request) {
	var req models.PostFilePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindUploadPostFile,
		models.Payload{PostFile: &req},
		"file upload queued")
}

func (s *Server) handleDeletePostFile(w http.ResponseWriter, r *http.Request) {
	var req models.DeletePostFilePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindDeletePostFile,
		models.Payload{DeletePostFile: &req},
		"file deletion queued")
}

func (s *Server) handleGenerateThumbnail(w http.ResponseWriter, r *http.Request) {
	var req models.ThumbnailPayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindGeneratePostThumbnail,
		models.Payload{Thumbnail: &req},
		"thumbnail generation queued")
}

// handleRenderMarkdown serves a render synchronously when it can: a cache
// hit answers immediately, otherwise the job is dispatched and awaited up
// to the render timeout. On timeout the caller gets 202 with the task id
// and polls for the result.
func (s *Server) handleRenderMarkdown(w http.ResponseWriter, r *http.Request) {
	var req models.MarkdownPayload
	if !decode(w, r, &req) {
		return
	}
	if req.PostID != "" && s.cache != nil {
		if cached, hit, err := s.cache.Get(r.Context(), req.PostID); err == nil && hit {
			telemetry.CacheHits.Inc()
			cached.Cached = true
			writeJSON(w, http.StatusOK, renderEnvelope(cached))
			return
		}
	}
	if !s.allow(w, r) {
		return
	}
	id, err := s.dispatcher.Submit(r.Context(), models.KindRenderMarkdown, models.Payload{Markdown: &req})
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := s.dispatcher.Await(r.Context(), id, s.cfg.RenderTimeout)
	if errors.Is(err, faults.ErrAwaitTimeout) {
		writeJSON(w, http.StatusAccepted, submitResponse{
			TaskID:  id,
			Status:  models.StatusPending,
			Message: "render still running, poll for the result",
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if st.Status == models.StatusFailure {
		writeJSON(w, http.StatusBadGateway, renderResponse{Success: false, Error: st.Error})
		return
	}
	if st.Result == nil || st.Result.Render == nil {
		writeJSON(w, http.StatusBadGateway, renderResponse{Success: false, Error: "render produced no output"})
		return
	}
	writeJSON(w, http.StatusOK, renderEnvelope(*st.Result.Render))
}

func (s *Server) handleRenderMarkdownAsync(w http.ResponseWriter, r *http.Request) {
	var req models.MarkdownPayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindRenderMarkdown,
		models.Payload{Markdown: &req},
		"render queued")
}

func (s *Server) handleInvalidateMarkdown(w http.ResponseWriter, r *http.Request) {
	var req models.InvalidatePayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindInvalidateMarkdown,
		models.Payload{Invalidate: &req},
		"cache invalidation queued")
}

func (s *Server) handleWarmMarkdownCache(w http.ResponseWriter, r *http.Request) {
	var req models.WarmupPayload
	if !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindWarmMarkdownCache,
		models.Payload{Warmup: &req},
		"cache warm-up queued")
}

func (s *Server) handleCleanupTokens(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, models.KindCleanupTokens,
		models.Payload{Cleanup: &models.CleanupPayload{}},
		"token cleanup queued")
}

func (s *Server) handleReindexPosts(w http.ResponseWriter, r *http.Request) {
	var req models.ReindexPayload
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	s.submit(w, r, models.KindReindexPosts,
		models.Payload{Reindex: &req},
		"reindex queued")
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.dispatcher.Poll(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateToResponse(st))
}

// handleDLQ returns dead-lettered task ids for operators.
func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.DLQPeek(r.Context(), 100)
	if err != nil {
		http.Error(w, "failed to read dlq", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func stateToResponse(st models.JobState) taskStatusResponse {
	return taskStatusResponse{
		TaskID:   st.ID,
		Kind:     st.Kind,
		Status:   st.Status,
		Progress: st.Progress,
		Result:   st.Result,
		Error:    st.Error,
	}
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps fault kinds to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch faults.KindOf(err) {
	case faults.KindValidation:
		code = http.StatusBadRequest
	case faults.KindNotFound:
		code = http.StatusNotFound
	case faults.KindTimeout:
		code = http.StatusGatewayTimeout
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

package markdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"content-tasks/internal/faults"
	"content-tasks/internal/models"
)

// Client calls the external markdown rendering service over HTTP. The
// service is a black box returning HTML plus a table-of-contents structure.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(host, port string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%s", host, port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Markdown string `json:"markdown"`
}

type renderEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    *struct {
		HTMLContent string          `json:"htmlContent"`
		TOCItems    json.RawMessage `json:"tocItems"`
	} `json:"data"`
}

// Render submits markdown and returns the structured result. Renderer
// unavailability in any form (timeout, connection failure, non-success
// status, malformed response) surfaces as a domain error; callers never
// cache anything on that path.
func (c *Client) Render(ctx context.Context, content string) (models.RenderResult, error) {
	body, err := json.Marshal(renderRequest{Markdown: content})
	if err != nil {
		return models.RenderResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return models.RenderResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.RenderResult{}, faults.Domain("markdown service unreachable: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return models.RenderResult{}, faults.Domain("read markdown response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.RenderResult{}, faults.Domain("markdown service returned status %d", resp.StatusCode)
	}

	var envelope renderEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return models.RenderResult{}, faults.Domain("malformed markdown response: %v", err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "unknown error"
		}
		return models.RenderResult{}, faults.Domain("markdown render failed: %s", msg)
	}
	if envelope.Data == nil {
		return models.RenderResult{}, faults.Domain("markdown response missing data")
	}

	toc := envelope.Data.TOCItems
	if len(toc) == 0 {
		toc = json.RawMessage("[]")
	}
	return models.RenderResult{
		HTMLContent: envelope.Data.HTMLContent,
		TOCItems:    toc,
	}, nil
}

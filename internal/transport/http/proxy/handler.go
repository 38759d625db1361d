// Package proxy forwards chat-completion requests to the upstream model
// backend. The bearer token is attached server-side and never exposed to
// callers; streamed responses are piped back verbatim.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wenjia28/nanochat/internal/config"
	"github.com/wenjia28/nanochat/internal/policy"
)

// Handler handles proxy HTTP requests.
type Handler struct {
	cfg        *config.Config
	engine     *policy.Engine
	httpClient *http.Client
}

// NewHandler creates a new proxy handler.
func NewHandler(cfg *config.Config, engine *policy.Engine) *Handler {
	return &Handler{
		cfg:    cfg,
		engine: engine,
		httpClient: &http.Client{
			Timeout: cfg.UpstreamTimeout,
		},
	}
}

// RegisterRoutes registers proxy routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/chat/completions", h.ChatCompletions)
	e.GET("/v1/models", h.ListModels)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ChatCompletions forwards a chat-completion request upstream.
// POST /v1/chat/completions
func (h *Handler) ChatCompletions(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
	}

	// Only the routing fields are inspected; the body is forwarded as-is.
	var req struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Model == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "model is required"})
	}

	decision, err := h.engine.Evaluate(ctx, policy.Input{
		Model:         req.Model,
		AllowedModels: h.cfg.Models,
	})
	if err != nil {
		log.Printf("ERROR: policy evaluation failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	if decision != policy.DecisionAllow {
		log.Printf("WARN: blocked chat request for model %s", req.Model)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "request blocked by policy", Message: "model not allowed"})
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.cfg.UpstreamBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	h.setHeaders(upstreamReq)

	resp, err := h.httpClient.Do(upstreamReq)
	if err != nil {
		log.Printf("ERROR: upstream request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	defer resp.Body.Close()

	if req.Stream {
		return h.pipeStream(c, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("ERROR: failed to read upstream response: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, data)
}

// pipeStream copies the upstream event stream back verbatim, flushing
// after every read so chunks reach the client as they arrive. The
// upstream status code is preserved: a 503 must surface as a 503 for the
// caller's fallback logic.
func (h *Handler) pipeStream(c echo.Context, resp *http.Response) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(resp.StatusCode)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := c.Response().Writer.Write(buf[:n]); writeErr != nil {
				// Client went away; abandoning the read is enough.
				return nil
			}
			flusher.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			log.Printf("WARN: upstream stream ended abnormally: %v", err)
			return nil
		}
	}
}

// ListModels forwards the model list request upstream.
// GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	ctx := c.Request().Context()

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.UpstreamBaseURL+"/models", nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	h.setHeaders(upstreamReq)

	resp, err := h.httpClient.Do(upstreamReq)
	if err != nil {
		log.Printf("ERROR: failed to list models: %v", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: "upstream error", Message: err.Error()})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Message: err.Error()})
	}
	return c.Blob(resp.StatusCode, echo.MIMEApplicationJSON, data)
}

// setHeaders sets common upstream request headers.
func (h *Handler) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.UpstreamAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.UpstreamAPIKey)
	}
}

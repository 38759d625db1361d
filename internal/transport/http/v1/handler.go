// Package v1 provides HTTP handlers for the chat API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wenjia28/nanochat/internal/chat"
	"github.com/wenjia28/nanochat/internal/config"
	"github.com/wenjia28/nanochat/internal/policy"
)

// Handler handles chat API requests.
type Handler struct {
	controller *chat.Controller
	engine     *policy.Engine
	cfg        *config.Config
}

// NewHandler creates a new chat API handler.
func NewHandler(controller *chat.Controller, engine *policy.Engine, cfg *config.Config) *Handler {
	return &Handler{
		controller: controller,
		engine:     engine,
		cfg:        cfg,
	}
}

// RegisterRoutes registers chat API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session list API
	e.GET("/v1/chat/sessions", h.ListSessions)
	e.POST("/v1/chat/sessions/:session_id/select", h.SelectSession)
	e.DELETE("/v1/chat/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/chat/new", h.NewConversation)

	// Active conversation API
	e.GET("/v1/chat/messages", h.GetMessages)
	e.POST("/v1/chat/messages", h.Submit)
	e.POST("/v1/chat/stop", h.Stop)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

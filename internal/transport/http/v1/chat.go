package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wenjia28/nanochat/internal/chat"
	"github.com/wenjia28/nanochat/internal/domain"
	"github.com/wenjia28/nanochat/internal/policy"
)

// ListSessions lists all sessions, most recently updated first.
// GET /v1/chat/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions":          h.controller.Sessions(),
		"active_session_id": h.controller.ActiveSessionID(),
	})
}

// SelectSession makes a session active and loads its messages.
// POST /v1/chat/sessions/:session_id/select
func (h *Handler) SelectSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	h.controller.SelectSession(sessionID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"active_session_id": h.controller.ActiveSessionID(),
		"messages":          h.controller.Messages(),
	})
}

// DeleteSession removes a session and its message history.
// DELETE /v1/chat/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	h.controller.DeleteSession(sessionID)
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// NewConversation clears the active session.
// POST /v1/chat/new
func (h *Handler) NewConversation(c echo.Context) error {
	h.controller.NewConversation()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// GetMessages returns the working message list of the active session.
// GET /v1/chat/messages
func (h *Handler) GetMessages(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": h.controller.Messages(),
		"typing":   h.controller.Typing(),
	})
}

// SubmitRequest is the request to send a user message.
type SubmitRequest struct {
	Content      string              `json:"content"`
	Model        string              `json:"model,omitempty"`
	SystemPrompt string              `json:"system_prompt,omitempty"`
	SessionID    string              `json:"session_id,omitempty"`
	Attachments  []domain.Attachment `json:"attachments,omitempty"`
}

// Submit starts a generation for the user message.
// POST /v1/chat/messages
func (h *Handler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content or attachments required"})
	}

	model := req.Model
	if model == "" {
		model = h.cfg.DefaultModel
	}
	attachmentTypes := make([]string, len(req.Attachments))
	for i, att := range req.Attachments {
		attachmentTypes[i] = att.Type
	}

	decision, err := h.engine.Evaluate(ctx, policy.Input{
		Model:           model,
		AllowedModels:   h.cfg.Models,
		AttachmentTypes: attachmentTypes,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if decision != policy.DecisionAllow {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "request blocked by policy"})
	}

	gen, err := h.controller.Submit(req.Content, chat.SubmitOptions{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Attachments:  req.Attachments,
		SessionID:    req.SessionID,
	})
	if err != nil {
		if errors.Is(err, chat.ErrStaleSession) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "session no longer active"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"session_id":           gen.SessionID,
		"assistant_message_id": gen.AssistantMessageID,
	})
}

// Stop cancels the active generation, if any.
// POST /v1/chat/stop
func (h *Handler) Stop(c echo.Context) error {
	h.controller.Stop()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

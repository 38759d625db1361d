// Package llm implements the completion client: one logical "ask the
// model" operation against an OpenAI-style chat-completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wenjia28/nanochat/internal/domain"
	"github.com/wenjia28/nanochat/internal/sse"
)

// Client talks to the chat-completions endpoint, usually this process's
// own transport proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new completion client. timeout bounds the whole
// request including the streamed body; zero means no limit.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// AskRequest describes one generation.
type AskRequest struct {
	History      []domain.Message
	Model        string
	SystemPrompt string
}

// ChunkFunc receives each cumulative snapshot as it is decoded. It is
// invoked synchronously: the next network read happens only after it
// returns.
type ChunkFunc func(domain.Snapshot)

// completionRequest is the wire request body.
type completionRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// wireMessage carries either a plain string or a typed-part list as
// content.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type textPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imagePart struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail"`
}

// formatMessage translates a stored message into the wire shape. Messages
// without attachments stay plain strings. Attachments turn the content
// into a part list: images are inlined as base64 data URLs, everything
// else becomes a textual placeholder so the model never receives raw
// non-image binary.
func formatMessage(msg domain.Message) wireMessage {
	if len(msg.Attachments) == 0 {
		return wireMessage{Role: msg.Role, Content: msg.Content}
	}

	var parts []any
	if msg.Content != "" {
		parts = append(parts, textPart{Type: "text", Text: msg.Content})
	}
	for _, att := range msg.Attachments {
		if att.Type == domain.AttachmentImage {
			parts = append(parts, imagePart{
				Type: "image_url",
				ImageURL: imageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", att.MimeType, att.Base64),
					Detail: "auto",
				},
			})
			continue
		}
		parts = append(parts, textPart{
			Type: "text",
			Text: fmt.Sprintf("[uploaded file: %s]", att.Name),
		})
	}
	return wireMessage{Role: msg.Role, Content: parts}
}

// Ask runs one streaming generation. onChunk is called with the running
// totals after every frame that adds text; the final totals are returned
// once the stream ends. Cancelling ctx yields ErrCancelled, a non-2xx
// response yields *HTTPError, and any other transport failure yields
// *NetworkError.
func (c *Client) Ask(ctx context.Context, req AskRequest, onChunk ChunkFunc) (domain.Snapshot, error) {
	msgs := make([]wireMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, wireMessage{Role: domain.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		msgs = append(msgs, formatMessage(m))
	}

	body, err := json.Marshal(completionRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.Snapshot{}, c.translateErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return domain.Snapshot{}, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	final, err := sse.Decode(resp.Body, func(s domain.Snapshot) error {
		onChunk(s)
		// Stop decoding promptly once the caller aborted.
		return ctx.Err()
	})
	if err != nil {
		return final, c.translateErr(ctx, err)
	}
	return final, nil
}

// translateErr maps a transport failure to the client's error taxonomy. An
// abort through ctx always wins over whatever error the aborted read
// produced.
func (c *Client) translateErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return &NetworkError{Err: err}
}

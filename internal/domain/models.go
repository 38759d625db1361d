// Package domain defines the core domain models for the chat relay.
package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Attachment types.
const (
	AttachmentImage = "image"
	AttachmentPDF   = "pdf"
	AttachmentFile  = "file"
)

// Session represents a conversation thread with its own message history.
type Session struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single message in a session. A user message is
// immutable once created; an assistant message starts empty and is updated
// in place while its generation streams.
type Message struct {
	MessageID   string       `json:"message_id"`
	Role        string       `json:"role"` // user, assistant, system
	Content     string       `json:"content"`
	Reasoning   string       `json:"reasoning,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Attachment is a user-uploaded file carried on a message. The payload is
// kept base64-encoded; only images are forwarded to the model as binary.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, pdf, file
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Base64   string `json:"base64"`
}

// Snapshot carries the cumulative text decoded so far for one generation.
// Each snapshot supersedes the previous one; consumers replace, not append.
type Snapshot struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

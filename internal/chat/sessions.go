package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wenjia28/nanochat/internal/domain"
)

// welcomeMessageID marks the seeded greeting shown in an empty
// conversation. It never enters model history or the session's stored
// list under a real message.
const welcomeMessageID = "welcome"

const maxTitleRunes = 30

func welcomeMessage() domain.Message {
	return domain.Message{
		MessageID: welcomeMessageID,
		Role:      domain.RoleAssistant,
		Content:   "Hello. Connected and ready.",
		CreatedAt: time.Now(),
	}
}

// Sessions returns a copy of the session list, most recently updated
// first.
func (c *Controller) Sessions() []domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Session(nil), c.sessions...)
}

// ActiveSessionID returns the currently active session id; empty in the
// new-conversation state.
func (c *Controller) ActiveSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSessionID
}

// SelectSession makes id the active session. A genuine switch away from a
// session with a running generation cancels it; entering a session from
// the new-conversation state never does, so a generation just started for
// a freshly created session survives its own creation. The message load
// is skipped while the typing guard is up.
func (c *Controller) SelectSession(id string) {
	c.mu.Lock()
	prev := c.activeSessionID

	var gen *Generation
	if prev != "" && id != "" && prev != id && c.active != nil {
		gen = c.active
		c.active = nil
		c.typing = false
	}

	c.activeSessionID = id
	if c.typing {
		log.Printf("skipping message load for session %s: generation in flight", id)
	} else {
		c.loadMessagesLocked(id)
	}
	c.mu.Unlock()

	if gen != nil {
		gen.Cancel()
	}
}

// NewConversation clears the active session. The next submit creates a
// fresh session.
func (c *Controller) NewConversation() {
	c.SelectSession("")
}

// DeleteSession removes a session and its message list. Deleting the
// active session drops back to the new-conversation state; a generation
// it owned is cancelled.
func (c *Controller) DeleteSession(id string) {
	c.mu.Lock()
	if idx := c.findSessionLocked(id); idx >= 0 {
		c.sessions = append(c.sessions[:idx], c.sessions[idx+1:]...)
		c.persistSessionsLocked()
	}

	var gen *Generation
	if c.active != nil && c.active.SessionID == id {
		gen = c.active
		c.active = nil
		c.typing = false
	}
	if c.activeSessionID == id {
		c.activeSessionID = ""
		c.loadMessagesLocked("")
	}
	if err := c.store.DeleteMessages(context.Background(), id); err != nil {
		log.Printf("ERROR: failed to delete messages for session %s: %v", id, err)
	}
	c.mu.Unlock()

	if gen != nil {
		gen.Cancel()
	}
}

// createSessionLocked creates a session for the first user message of a
// new conversation and makes it active.
func (c *Controller) createSessionLocked(preview string) string {
	sess := domain.Session{
		SessionID: c.newSessionIDLocked(),
		Title:     truncateTitle(preview),
		Preview:   preview,
		UpdatedAt: time.Now(),
	}
	c.sessions = append([]domain.Session{sess}, c.sessions...)
	c.activeSessionID = sess.SessionID
	c.persistSessionsLocked()
	return sess.SessionID
}

// touchSessionLocked updates a session's preview and recency, keeping the
// list sorted by updatedAt descending.
func (c *Controller) touchSessionLocked(id, preview string) {
	if idx := c.findSessionLocked(id); idx >= 0 {
		c.sessions[idx].Preview = preview
		c.sessions[idx].Title = truncateTitle(preview)
		c.sessions[idx].UpdatedAt = time.Now()
	}
	c.sortSessionsLocked()
	c.persistSessionsLocked()
}

func (c *Controller) findSessionLocked(id string) int {
	for i := range c.sessions {
		if c.sessions[i].SessionID == id {
			return i
		}
	}
	return -1
}

// sortSessionsLocked orders by updatedAt descending; the stable sort keeps
// the original relative order on ties.
func (c *Controller) sortSessionsLocked() {
	sort.SliceStable(c.sessions, func(i, j int) bool {
		return c.sessions[i].UpdatedAt.After(c.sessions[j].UpdatedAt)
	})
}

// loadMessagesLocked replaces the working list with the stored list of id
// and records id as the loaded session. An empty id or an empty stored
// list yields the welcome greeting.
func (c *Controller) loadMessagesLocked(id string) {
	if id == "" {
		c.messages = []domain.Message{welcomeMessage()}
		c.lastLoadedSessionID = ""
		return
	}

	msgs, err := c.store.LoadMessages(context.Background(), id)
	if err != nil {
		log.Printf("ERROR: failed to load messages for session %s: %v", id, err)
		msgs = nil
	}
	if len(msgs) == 0 {
		msgs = []domain.Message{welcomeMessage()}
	}
	c.messages = msgs
	c.lastLoadedSessionID = id
}

// persistMessagesLocked writes the working list for the loaded session,
// whole list, last-writer-wins.
func (c *Controller) persistMessagesLocked() {
	if c.lastLoadedSessionID == "" {
		return
	}
	msgs := append([]domain.Message(nil), c.messages...)
	if err := c.store.SaveMessages(context.Background(), c.lastLoadedSessionID, msgs); err != nil {
		log.Printf("ERROR: failed to save messages for session %s: %v", c.lastLoadedSessionID, err)
	}
}

func (c *Controller) persistSessionsLocked() {
	sessions := append([]domain.Session(nil), c.sessions...)
	if err := c.store.SaveSessions(context.Background(), sessions); err != nil {
		log.Printf("ERROR: failed to save sessions: %v", err)
	}
}

// newSessionIDLocked derives a unique id from the creation time.
func (c *Controller) newSessionIDLocked() string {
	ms := time.Now().UnixMilli()
	for c.findSessionLocked(strconv.FormatInt(ms, 10)) >= 0 {
		ms++
	}
	return strconv.FormatInt(ms, 10)
}

func newMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}

func withoutWelcome(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.MessageID != welcomeMessageID {
			out = append(out, m)
		}
	}
	return out
}

func truncateTitle(preview string) string {
	runes := []rune(preview)
	if len(runes) <= maxTitleRunes {
		return preview
	}
	return string(runes[:maxTitleRunes]) + "..."
}

func previewText(content string, attachments []domain.Attachment) string {
	if len(attachments) == 0 {
		return content
	}
	if content == "" {
		content = "(attachments only)"
	}
	return fmt.Sprintf("[%d attachments] %s", len(attachments), content)
}

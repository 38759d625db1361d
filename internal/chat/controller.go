// Package chat implements the session-consistency controller: the state
// machine that owns in-flight generations and guarantees that a stream's
// output is applied only to the session that originated it, even when the
// user switches sessions or starts a new one mid-flight.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/wenjia28/nanochat/internal/config"
	"github.com/wenjia28/nanochat/internal/domain"
	"github.com/wenjia28/nanochat/internal/llm"
	"github.com/wenjia28/nanochat/internal/store"
)

// ErrStaleSession reports a submit bound to a session that is no longer
// part of the session list. Stale chunks are dropped silently instead.
var ErrStaleSession = errors.New("stale session")

// fallbackNotice is shown in the assistant message while the fallback
// retry is being set up. The first fallback snapshot replaces it entirely:
// the notice never enters the accumulator.
const fallbackNotice = "_(Primary model busy, switching to the fallback model...)_\n\n"

// Asker runs one streaming generation. *llm.Client implements it.
type Asker interface {
	Ask(ctx context.Context, req llm.AskRequest, onChunk llm.ChunkFunc) (domain.Snapshot, error)
}

// Generation is the ephemeral handle for one in-flight ask. Its assistant
// message id is fixed for its whole lifetime, including the fallback retry.
type Generation struct {
	SessionID          string
	AssistantMessageID string

	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel aborts the generation. Safe to call more than once and after
// natural completion.
func (g *Generation) Cancel() {
	g.cancel()
}

// Wait blocks until the generation reached a terminal state.
func (g *Generation) Wait() {
	<-g.done
}

// Controller owns the session list, the working message list of the active
// session, and the single in-flight generation. All state is guarded by mu;
// every callback re-validates ownership under the lock against the latest
// session identity, so stale writers are rejected rather than serialized.
type Controller struct {
	mu sync.Mutex

	store  store.Store
	client Asker
	cfg    *config.Config

	sessions        []domain.Session
	activeSessionID string

	// Working copy of the active session's messages and the id of the
	// session it was loaded for. Persistence always targets the loaded
	// session, which keeps a slow load from clobbering newer state.
	messages            []domain.Message
	lastLoadedSessionID string

	// typing is true exactly while a generation is being set up or run.
	// It gates the message-load reaction to session changes.
	typing bool
	active *Generation
}

// New creates a controller and restores the session list from the store.
// The most recently updated session becomes active, matching the stored
// sort order.
func New(st store.Store, client Asker, cfg *config.Config) (*Controller, error) {
	sessions, err := st.LoadSessions(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	c := &Controller{
		store:    st,
		client:   client,
		cfg:      cfg,
		sessions: sessions,
	}
	if len(sessions) > 0 {
		c.activeSessionID = sessions[0].SessionID
	}
	c.loadMessagesLocked(c.activeSessionID)
	return c, nil
}

// SubmitOptions carries the per-submit settings.
type SubmitOptions struct {
	Model        string
	SystemPrompt string
	Attachments  []domain.Attachment

	// SessionID is the explicit target session. Empty means the active
	// session, creating one if the controller is in the new-conversation
	// state.
	SessionID string
}

// Submit appends the user message, creates the empty assistant message and
// starts a generation for the effective session. The typing guard is
// raised before any session creation or selection side-effect so the
// session-changed reaction cannot mistake the submit for a real switch.
func (c *Controller) Submit(content string, opts SubmitOptions) (*Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.typing = true

	preview := previewText(content, opts.Attachments)
	effective := opts.SessionID
	switch {
	case effective == "":
		effective = c.activeSessionID
		if effective == "" {
			effective = c.createSessionLocked(preview)
		} else {
			c.touchSessionLocked(effective, preview)
		}
	case c.findSessionLocked(effective) < 0:
		// The submit raced a switch or delete; reject without side effects.
		c.typing = c.active != nil
		log.Printf("WARN: rejecting submit for stale session %s", effective)
		return nil, ErrStaleSession
	default:
		c.touchSessionLocked(effective, preview)
	}

	// The submit binds ownership: the target session becomes the active
	// one and the working list is loaded for it before being mutated.
	c.activeSessionID = effective
	if c.lastLoadedSessionID != effective {
		msgs, err := c.store.LoadMessages(context.Background(), effective)
		if err != nil {
			log.Printf("ERROR: failed to load messages for session %s: %v", effective, err)
			msgs = nil
		}
		c.messages = msgs
		c.lastLoadedSessionID = effective
	}

	userMsg := domain.Message{
		MessageID:   newMessageID(),
		Role:        domain.RoleUser,
		Content:     content,
		Attachments: opts.Attachments,
		CreatedAt:   time.Now(),
	}
	assistant := domain.Message{
		MessageID: newMessageID(),
		Role:      domain.RoleAssistant,
		CreatedAt: time.Now(),
	}

	c.messages = append(withoutWelcome(c.messages), userMsg, assistant)
	c.persistMessagesLocked()

	// Model history: everything up to and including the user message.
	history := make([]domain.Message, len(c.messages)-1)
	copy(history, c.messages[:len(c.messages)-1])

	model := opts.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = c.cfg.SystemPrompt
	}

	ctx, cancel := context.WithCancel(context.Background())
	gen := &Generation{
		SessionID:          effective,
		AssistantMessageID: assistant.MessageID,
		cancel:             cancel,
		done:               make(chan struct{}),
	}
	// A previous handle for this session, if any, is implicitly
	// invalidated: ownership checks compare against c.active.
	c.active = gen

	go c.run(ctx, gen, history, model, systemPrompt)
	return gen, nil
}

// run drives one generation to a terminal state, including the one-shot
// fallback retry.
func (c *Controller) run(ctx context.Context, gen *Generation, history []domain.Message, model, systemPrompt string) {
	defer c.finish(gen)

	onChunk := func(s domain.Snapshot) {
		c.applyChunk(gen, s)
	}
	req := llm.AskRequest{History: history, Model: model, SystemPrompt: systemPrompt}

	_, err := c.client.Ask(ctx, req, onChunk)
	if err == nil {
		return
	}

	if c.shouldFallback(err, model) {
		log.Printf("WARN: model %s unavailable, retrying with %s: %v", model, c.cfg.FallbackModel, err)
		c.setAssistantContent(gen, fallbackNotice)

		req.Model = c.cfg.FallbackModel
		retrySnap, retryErr := c.client.Ask(ctx, req, onChunk)
		if retryErr == nil {
			_ = retrySnap
			return
		}
		err = retryErr
	}

	if errors.Is(err, llm.ErrCancelled) {
		// Clean stop: the partial text stays exactly as it was.
		return
	}

	log.Printf("ERROR: generation failed for session %s: %v", gen.SessionID, err)
	c.appendAssistantError(gen, err)
}

// shouldFallback reports whether err is a capacity failure eligible for
// the one-shot fallback retry. Only the designated primary model falls
// back; the fallback model itself is never retried.
func (c *Controller) shouldFallback(err error, model string) bool {
	if model != c.cfg.DefaultModel {
		return false
	}
	var httpErr *llm.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.Status == http.StatusServiceUnavailable || httpErr.Status == http.StatusTooManyRequests
}

// ownsLocked reports whether gen may still mutate message state. The check
// runs against the latest session identity, not the identity captured at
// submit time.
func (c *Controller) ownsLocked(gen *Generation) bool {
	return c.active == gen &&
		c.activeSessionID == gen.SessionID &&
		c.lastLoadedSessionID == gen.SessionID
}

// applyChunk replaces the assistant message's content and reasoning with
// the snapshot's cumulative values. Chunks for a stale generation are
// dropped silently.
func (c *Controller) applyChunk(gen *Generation, snap domain.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownsLocked(gen) {
		log.Printf("WARN: dropping chunk for stale generation (session %s)", gen.SessionID)
		return
	}
	c.updateMessageLocked(gen.AssistantMessageID, func(m *domain.Message) {
		m.Content = snap.Content
		m.Reasoning = snap.Reasoning
	})
	c.persistMessagesLocked()
}

// setAssistantContent overwrites the assistant message, ownership
// permitting. Used for the fallback notice.
func (c *Controller) setAssistantContent(gen *Generation, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownsLocked(gen) {
		return
	}
	c.updateMessageLocked(gen.AssistantMessageID, func(m *domain.Message) {
		m.Content = content
	})
	c.persistMessagesLocked()
}

// appendAssistantError surfaces a terminal failure as inline text after
// whatever partial content exists.
func (c *Controller) appendAssistantError(gen *Generation, genErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ownsLocked(gen) {
		return
	}
	c.updateMessageLocked(gen.AssistantMessageID, func(m *domain.Message) {
		m.Content += fmt.Sprintf("\n\n[Error: %v]", genErr)
	})
	c.persistMessagesLocked()
}

// finish transitions the session back to idle and releases the token.
func (c *Controller) finish(gen *Generation) {
	c.mu.Lock()
	if c.active == gen {
		c.active = nil
		c.typing = false
	}
	c.mu.Unlock()

	gen.cancel()
	close(gen.done)
}

// Stop cancels the active generation and forces idle. Idempotent: calling
// it twice, or after natural completion, is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	gen := c.active
	c.active = nil
	c.typing = false
	c.mu.Unlock()

	if gen != nil {
		gen.Cancel()
	}
}

// updateMessageLocked applies fn to the message with the given id.
func (c *Controller) updateMessageLocked(id string, fn func(*domain.Message)) {
	for i := range c.messages {
		if c.messages[i].MessageID == id {
			fn(&c.messages[i])
			return
		}
	}
}

// Messages returns a copy of the working message list.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

// Typing reports whether a generation is being set up or run.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

package store

import (
	"context"
	"sync"

	"github.com/wenjia28/nanochat/internal/domain"
)

// MemoryStore implements Store in memory. It backs tests and ephemeral
// deployments where history should not outlive the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions []domain.Session
	messages map[string][]domain.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]domain.Message),
	}
}

func (s *MemoryStore) LoadSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Session(nil), s.sessions...), nil
}

func (s *MemoryStore) SaveSessions(ctx context.Context, sessions []domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]domain.Session(nil), sessions...)
	return nil
}

func (s *MemoryStore) LoadMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[sessionID]...), nil
}

func (s *MemoryStore) SaveMessages(ctx context.Context, sessionID string, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[sessionID] = append([]domain.Message(nil), messages...)
	return nil
}

func (s *MemoryStore) DeleteMessages(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Package store defines the persistence interface and implementations.
//
// The contract is deliberately narrow: whole lists are read and written at
// once, last-writer-wins. The session list is saved pre-sorted by the
// caller; message lists are keyed by session id and replaced wholesale.
package store

import (
	"context"

	"github.com/wenjia28/nanochat/internal/domain"
)

// Store persists the session list and per-session message lists.
type Store interface {
	LoadSessions(ctx context.Context) ([]domain.Session, error)
	SaveSessions(ctx context.Context, sessions []domain.Session) error

	LoadMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	SaveMessages(ctx context.Context, sessionID string, messages []domain.Message) error
	DeleteMessages(ctx context.Context, sessionID string) error

	Close() error
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjia28/nanochat/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	sessions := []domain.Session{
		{SessionID: "2", Title: "newer", Preview: "newer", UpdatedAt: now},
		{SessionID: "1", Title: "older", Preview: "older", UpdatedAt: now.Add(-time.Hour)},
	}
	require.NoError(t, s.SaveSessions(ctx, sessions))

	loaded, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Stored order is the caller's order.
	assert.Equal(t, "2", loaded[0].SessionID)
	assert.Equal(t, "1", loaded[1].SessionID)
	assert.True(t, loaded[1].UpdatedAt.Before(loaded[0].UpdatedAt))
}

func TestSaveSessionsReplacesList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSessions(ctx, []domain.Session{
		{SessionID: "1", Title: "a", Preview: "a", UpdatedAt: time.Now()},
		{SessionID: "2", Title: "b", Preview: "b", UpdatedAt: time.Now()},
	}))
	require.NoError(t, s.SaveSessions(ctx, []domain.Session{
		{SessionID: "2", Title: "b2", Preview: "b2", UpdatedAt: time.Now()},
	}))

	loaded, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b2", loaded[0].Title)
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msgs := []domain.Message{
		{
			MessageID: "m1",
			Role:      domain.RoleUser,
			Content:   "look",
			CreatedAt: time.Now().Truncate(time.Second),
			Attachments: []domain.Attachment{
				{ID: "a1", Type: domain.AttachmentImage, Name: "cat.png", MimeType: "image/png", Size: 3, Base64: "aWNh"},
			},
		},
		{MessageID: "m2", Role: domain.RoleAssistant, Content: "a cat", Reasoning: "it has ears", CreatedAt: time.Now().Truncate(time.Second)},
	}
	require.NoError(t, s.SaveMessages(ctx, "s1", msgs))

	loaded, err := s.LoadMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "m1", loaded[0].MessageID)
	require.Len(t, loaded[0].Attachments, 1)
	assert.Equal(t, "cat.png", loaded[0].Attachments[0].Name)
	assert.Equal(t, "it has ears", loaded[1].Reasoning)
}

func TestSaveMessagesLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMessages(ctx, "s1", []domain.Message{
		{MessageID: "m1", Role: domain.RoleUser, Content: "v1", CreatedAt: time.Now()},
		{MessageID: "m2", Role: domain.RoleAssistant, Content: "partial", CreatedAt: time.Now()},
	}))
	require.NoError(t, s.SaveMessages(ctx, "s1", []domain.Message{
		{MessageID: "m1", Role: domain.RoleUser, Content: "v1", CreatedAt: time.Now()},
		{MessageID: "m2", Role: domain.RoleAssistant, Content: "complete", CreatedAt: time.Now()},
	}))

	loaded, err := s.LoadMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "complete", loaded[1].Content)
}

func TestMessagesIsolatedPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMessages(ctx, "a", []domain.Message{
		{MessageID: "m1", Role: domain.RoleUser, Content: "for a", CreatedAt: time.Now()},
	}))
	require.NoError(t, s.SaveMessages(ctx, "b", []domain.Message{
		{MessageID: "m2", Role: domain.RoleUser, Content: "for b", CreatedAt: time.Now()},
	}))

	loadedA, err := s.LoadMessages(ctx, "a")
	require.NoError(t, err)
	loadedB, err := s.LoadMessages(ctx, "b")
	require.NoError(t, err)
	require.Len(t, loadedA, 1)
	require.Len(t, loadedB, 1)
	assert.Equal(t, "for a", loadedA[0].Content)
	assert.Equal(t, "for b", loadedB[0].Content)
}

func TestDeleteMessagesCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMessages(ctx, "s1", []domain.Message{
		{MessageID: "m1", Role: domain.RoleUser, Content: "bye", CreatedAt: time.Now()},
	}))
	require.NoError(t, s.DeleteMessages(ctx, "s1"))

	loaded, err := s.LoadMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

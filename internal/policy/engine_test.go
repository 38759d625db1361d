package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), DefaultPolicy)
	require.NoError(t, err)
	return e
}

func TestPolicyAllowsKnownModel(t *testing.T) {
	e := newTestEngine(t)

	decision, err := e.Evaluate(context.Background(), Input{
		Model:         "claude-opus-4-5-thinking",
		AllowedModels: []string{"claude-opus-4-5-thinking", "gemini-3-pro-high"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestPolicyBlocksUnknownModel(t *testing.T) {
	e := newTestEngine(t)

	decision, err := e.Evaluate(context.Background(), Input{
		Model:         "gpt-9",
		AllowedModels: []string{"claude-opus-4-5-thinking"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
}

func TestPolicyBlocksRawBinaryAttachments(t *testing.T) {
	e := newTestEngine(t)

	decision, err := e.Evaluate(context.Background(), Input{
		Model:           "claude-opus-4-5-thinking",
		AllowedModels:   []string{"claude-opus-4-5-thinking"},
		AttachmentTypes: []string{"image", "file"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
}

func TestPolicyAllowsImageAndPDF(t *testing.T) {
	e := newTestEngine(t)

	decision, err := e.Evaluate(context.Background(), Input{
		Model:           "gemini-3-pro-high",
		AllowedModels:   []string{"gemini-3-pro-high"},
		AttachmentTypes: []string{"image", "pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestPolicyRejectsInvalidModule(t *testing.T) {
	_, err := NewEngine(context.Background(), "not rego {")
	assert.Error(t, err)
}

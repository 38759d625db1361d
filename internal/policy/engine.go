// Package policy evaluates chat requests against an OPA policy before
// they are forwarded upstream.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by Evaluate.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.chat_policy.decision"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input describes one chat request for policy evaluation.
type Input struct {
	Model           string   `json:"model"`
	AllowedModels   []string `json:"allowed_models"`
	AttachmentTypes []string `json:"attachment_types"`
}

// Evaluate checks the chat policy and returns the decision.
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy is expected to define a default.
		return DecisionAllow, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("policy returned non-string decision")
}

// DefaultPolicy blocks models outside the configured allow-list and
// attachment types the completion client cannot forward.
const DefaultPolicy = `
package chat_policy

import rego.v1

default decision := "allow"

decision := "block" if {
	not model_allowed
}

decision := "block" if {
	some t in input.attachment_types
	not t in {"image", "pdf"}
}

model_allowed if {
	some m in input.allowed_models
	m == input.model
}
`

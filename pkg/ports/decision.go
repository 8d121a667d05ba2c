package ports

import (
	"context"
	"encoding/json"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Prompt is the input handed to a decision model.
type Prompt struct {
	// Node is the agent asking for a decision.
	Node string
	// System holds the rendered instructions for the agent.
	System string
	// Messages replays the conversation, oldest first.
	Messages []domain.Message
}

// Shape describes the structure a decision must conform to.
type Shape struct {
	Name   string
	Schema json.RawMessage
}

// DecisionModel turns a prompt into a structured decision.
// Implementations must return either a Decision conforming to shape or an
// error; the caller treats every error as a domain.DecisionError.
type DecisionModel interface {
	Decide(ctx context.Context, prompt Prompt, shape Shape) (domain.Decision, error)
}

// DecisionModelFunc adapts a function to the DecisionModel interface.
type DecisionModelFunc func(ctx context.Context, prompt Prompt, shape Shape) (domain.Decision, error)

// Decide calls f.
func (f DecisionModelFunc) Decide(ctx context.Context, prompt Prompt, shape Shape) (domain.Decision, error) {
	return f(ctx, prompt, shape)
}

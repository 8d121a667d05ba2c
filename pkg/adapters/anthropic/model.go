// Package anthropic implements ports.DecisionModel on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Options configure the model.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	// HistoryLimit caps the replayed conversation. Zero replays everything.
	HistoryLimit int
}

// Model implements ports.DecisionModel.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaults() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

// NewModel creates a model with its own client. The API key falls back to
// ANTHROPIC_API_KEY when no option sets it.
func NewModel(clientOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := anthropic.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient wraps an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Decide implements ports.DecisionModel.
func (m *Model) Decide(ctx context.Context, prompt ports.Prompt, shape ports.Shape) (domain.Decision, error) {
	system := prompt.System
	if len(shape.Schema) > 0 {
		system += fmt.Sprintf("\n\nAnswer with a single JSON object matching the %s schema:\n%s", shape.Name, shape.Schema)
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    m.buildMessages(prompt.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return handoff.Extract(text.String())
}

// buildMessages replays the conversation. The Messages API requires
// alternating roles starting with the user, so consecutive messages of one
// role are merged and a leading assistant message is dropped.
func (m *Model) buildMessages(history []domain.Message) []anthropic.MessageParam {
	if n := m.opts.HistoryLimit; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	type turn struct {
		role domain.Role
		text []string
	}
	var turns []turn
	for _, msg := range history {
		role := domain.RoleUser
		if msg.Role == domain.RoleAssistant {
			role = domain.RoleAssistant
		}
		if len(turns) == 0 && role == domain.RoleAssistant {
			continue
		}
		if len(turns) > 0 && turns[len(turns)-1].role == role {
			turns[len(turns)-1].text = append(turns[len(turns)-1].text, msg.Content)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{msg.Content}})
	}
	if len(turns) == 0 {
		turns = append(turns, turn{role: domain.RoleUser, text: []string{"(no message)"}})
	}

	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n"))
		if t.role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

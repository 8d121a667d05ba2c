// Package openai implements ports.DecisionModel on the OpenAI chat
// completions API in JSON mode.
package openai

import (
	"context"
	"fmt"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Options configure the model.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// HistoryLimit caps the replayed conversation. Zero replays everything.
	HistoryLimit int
}

// Model implements ports.DecisionModel.
type Model struct {
	client *openai.Client
	opts   Options
}

func defaults() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
	}
}

// NewModel creates a model with its own client. The API key falls back to
// OPENAI_API_KEY when no option sets it.
func NewModel(clientOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient wraps an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Decide implements ports.DecisionModel.
func (m *Model) Decide(ctx context.Context, prompt ports.Prompt, shape ports.Shape) (domain.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            m.buildMessages(prompt, shape),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Decision{}, fmt.Errorf("no choices returned")
	}
	return handoff.Extract(resp.Choices[0].Message.Content)
}

func (m *Model) buildMessages(prompt ports.Prompt, shape ports.Shape) []openai.ChatCompletionMessageParamUnion {
	system := prompt.System
	if len(shape.Schema) > 0 {
		system += fmt.Sprintf("\n\nThe JSON object must match the %s schema:\n%s", shape.Name, shape.Schema)
	}

	history := prompt.Messages
	if n := m.opts.HistoryLimit; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(system))
	for _, msg := range history {
		switch msg.Role {
		case domain.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/switchboard/pkg/adapters/anthropic"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(text string) map[string]any {
	return map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-3-5-sonnet-20241022",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 10},
	}
}

func newModel(t *testing.T, handler http.HandlerFunc) *anthropic.Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return anthropic.NewModel([]option.RequestOption{
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL + "/"),
		option.WithMaxRetries(0),
	})
}

func TestDecide(t *testing.T) {
	var body map[string]any
	model := newModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(message(
			"```json\n" + `{"handoff_agents":[{"agent_name":"respond_to_user","message_to_agent":"","agent_specific_parameters":{"message_to_student":"Hello!","agent_after_response":"routing_agent"}}]}` + "\n```",
		))
	})

	prompt := ports.Prompt{
		Node:   domain.RoutingAgent,
		System: "greet",
		Messages: []domain.Message{
			{Role: domain.RoleAssistant, Content: "stray"},
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleUser, Content: "anyone?"},
		},
	}
	d, err := model.Decide(context.Background(), prompt, handoff.Shape)
	require.NoError(t, err)
	require.Len(t, d.Handoffs, 1)
	assert.Equal(t, domain.RespondToUser, d.Handoffs[0].AgentName)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1, "leading assistant dropped, user messages merged")
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])

	system := body["system"].([]any)
	require.Len(t, system, 1)
	assert.Contains(t, system[0].(map[string]any)["text"], "greet")
}

func TestDecide_APIError(t *testing.T) {
	model := newModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	})

	_, err := model.Decide(context.Background(), ports.Prompt{Node: "n"}, handoff.Shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
}

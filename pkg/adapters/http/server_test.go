package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, opts ...Option) (http.Handler, *switchboard.Orchestrator) {
	t.Helper()
	orc, err := switchboard.New(
		switchboard.WithModel(scripted.New()),
		switchboard.WithStore(memory.NewStore()),
	)
	require.NoError(t, err)
	h, err := NewHandler(orc, opts...)
	require.NoError(t, err)
	return h, orc
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/turns"))
}

func TestPostTurn(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"+254700","message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply switchboard.Reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "+254700", reply.UserID)
	assert.Equal(t, "You said: hello", reply.Message)
	assert.Equal(t, domain.StatusDone, reply.Status)
	assert.NotEmpty(t, reply.TurnID)
}

func TestPostTurn_SchemaValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"user_id":"u"}`},
		{"empty user", `{"user_id":"","message":"hi"}`},
		{"wrong type", `{"user_id":"u","message":42}`},
		{"unknown field", `{"user_id":"u","message":"hi","admin":true}`},
		{"not json", `user_id=u`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/turns", "application/json", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPostTurn_InputTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxInputSize(8))

	w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"far too long for the limit"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "input exceeds maximum allowed size")
}

func TestPostTurn_BodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t, WithMaxBodyBytes(16))

	w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"hello there"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPostTurn_RateLimited(t *testing.T) {
	h, _ := newTestHandler(t, WithRateLimit(1, 2))

	for i := 0; i < 2; i++ {
		w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"hi"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"other","message":"hi"}`)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per user")
}

type failingOrchestrator struct {
	Orchestrator
	err error
}

func (f failingOrchestrator) Turn(context.Context, string, string) (*switchboard.Reply, error) {
	return nil, f.err
}

func TestPostTurn_Errors(t *testing.T) {
	_, orc := newTestHandler(t)

	tests := []struct {
		err  error
		code int
	}{
		{&domain.PersistenceError{Op: "save", UserID: "u", Err: errors.New("disk full")}, http.StatusInternalServerError},
		{domain.ErrLockTimeout, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		h, err := NewHandler(failingOrchestrator{Orchestrator: orc, err: tt.err})
		require.NoError(t, err)
		w := do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"hi"}`)
		assert.Equal(t, tt.code, w.Code)
		assert.NotContains(t, w.Body.String(), "disk full")
	}
}

func TestPostSMS_TwiML(t *testing.T) {
	h, orc := newTestHandler(t)

	form := url.Values{"From": {"+254711"}, "Body": {"Habari <3"}, "MessageSid": {"SM1"}}
	w := do(t, h, http.MethodPost, "/v1/webhooks/sms", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Equal(t,
		`<?xml version="1.0" encoding="UTF-8"?>`+"\n"+`<Response><Message>You said: Habari &lt;3</Message></Response>`,
		w.Body.String())

	ids, err := orc.Sessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"+254711"}, ids)
}

func TestPostSMS_MissingFrom(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodPost, "/v1/webhooks/sms", "application/x-www-form-urlencoded", "Body=hi")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/v1/sessions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/sessions/u1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u1","message":"hi"}`)

	w = do(t, h, http.MethodGet, "/v1/sessions", "", "")
	assert.JSONEq(t, `{"sessions":["u1"]}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/sessions/u1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st domain.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "u1", st.UserID)
	assert.Equal(t, 1, st.Turns)

	w = do(t, h, http.MethodDelete, "/v1/sessions/u1", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/v1/sessions/u1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetGraph(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/v1/graph", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var g GraphDescription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, domain.RoutingAgent, g.Entry)
	require.NotEmpty(t, g.Nodes)
	assert.Equal(t, domain.RoutingAgent, g.Nodes[0].Name)
	assert.Equal(t, []string{domain.RespondToUser, domain.TutorAgent}, g.Nodes[0].Successors)

	w = do(t, h, http.MethodGet, "/v1/graph?format=mermaid", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"))

	w = do(t, h, http.MethodGet, "/v1/graph?format=svg", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthInfoAndSpec(t *testing.T) {
	h, _ := newTestHandler(t)

	w := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/info", "", "")
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "switchboard-http", info["app"])
	assert.Equal(t, "1.0.0", info["api_version"])

	w = do(t, h, http.MethodGet, "/openapi.yaml", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	orc, err := switchboard.New(
		switchboard.WithModel(scripted.New()),
		switchboard.WithLifecycleHooks(metrics.Hooks()),
	)
	require.NoError(t, err)
	h, err := NewHandler(orc, WithGatherer(reg))
	require.NoError(t, err)

	do(t, h, http.MethodPost, "/v1/turns", "application/json", `{"user_id":"u","message":"hi"}`)

	w := do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `switchboard_turns_total{status="done"} 1`)
}

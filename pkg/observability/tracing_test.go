package observability_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/handoff"
	"github.com/aretw0/switchboard/pkg/observability"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func TestTraceModel(t *testing.T) {
	rec, tp := newRecorder()
	tracer := tp.Tracer("test")

	model := observability.TraceModel(scripted.New(), tracer)
	_, err := model.Decide(context.Background(), ports.Prompt{Node: domain.RoutingAgent}, handoff.Shape)
	require.NoError(t, err)

	failing := observability.TraceModel(scripted.New().On("x", scripted.Fail(errors.New("boom"))), tracer)
	_, err = failing.Decide(context.Background(), ports.Prompt{Node: "x"}, handoff.Shape)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "decision_model.Decide", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestTracingHooks_AddSpanEvents(t *testing.T) {
	rec, tp := newRecorder()
	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")

	hooks := observability.TracingHooks()
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{Node: domain.RoutingAgent, Attempt: 1, Next: domain.End})
	hooks.OnBreakerTripped(ctx, &domain.AnomalyEvent{
		Node: domain.TutorAgent,
		Err:  &domain.BreakerTripped{Node: domain.TutorAgent, Reason: domain.BreakerAttempts, Limit: 3},
	})
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	events := ended[0].Events()
	require.Len(t, events, 2)
	assert.Equal(t, "node", events[0].Name)
	assert.Equal(t, "breaker_tripped", events[1].Name)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
}

func TestNewStdoutTracerProvider(t *testing.T) {
	var buf bytes.Buffer
	tp, err := observability.NewStdoutTracerProvider(&buf)
	require.NoError(t, err)

	_, span := observability.Tracer().Start(context.Background(), "smoke")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "smoke")
}

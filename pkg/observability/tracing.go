package observability

import (
	"context"
	"io"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies spans created by switchboard.
const TracerName = "github.com/aretw0/switchboard"

// Tracer returns the switchboard tracer of the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// NewStdoutTracerProvider exports spans as JSON lines to w and installs the
// provider globally. Callers must Shutdown it to flush.
func NewStdoutTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// TracingHooks records node transitions and anomalies as events on the span
// carried by the turn context.
func TracingHooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			attrs := []attribute.KeyValue{
				attribute.String("node", e.Node),
				attribute.Int("attempt", e.Attempt),
				attribute.String("next", e.Next),
				attribute.Int64("duration_ms", e.Duration.Milliseconds()),
			}
			if e.Err != "" {
				attrs = append(attrs, attribute.String("error", e.Err))
			}
			trace.SpanFromContext(ctx).AddEvent("node", trace.WithAttributes(attrs...))
		},
		OnHandoffDropped: anomalyEvent("handoff_dropped"),
		OnRouteRejected:  anomalyEvent("route_rejected"),
		OnBreakerTripped: func(ctx context.Context, e *domain.AnomalyEvent) {
			span := trace.SpanFromContext(ctx)
			span.AddEvent("breaker_tripped", trace.WithAttributes(attribute.String("node", e.Node)))
			span.SetStatus(codes.Error, e.Err.Error())
		},
	}
}

func anomalyEvent(name string) func(context.Context, *domain.AnomalyEvent) {
	return func(ctx context.Context, e *domain.AnomalyEvent) {
		trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(
			attribute.String("node", e.Node),
			attribute.String("error", e.Err.Error()),
		))
	}
}

type tracedModel struct {
	next   ports.DecisionModel
	tracer trace.Tracer
}

// TraceModel wraps a decision model so every call gets its own span.
func TraceModel(next ports.DecisionModel, tracer trace.Tracer) ports.DecisionModel {
	if tracer == nil {
		tracer = Tracer()
	}
	return &tracedModel{next: next, tracer: tracer}
}

func (m *tracedModel) Decide(ctx context.Context, prompt ports.Prompt, shape ports.Shape) (domain.Decision, error) {
	ctx, span := m.tracer.Start(ctx, "decision_model.Decide", trace.WithAttributes(
		attribute.String("node", prompt.Node),
		attribute.String("shape", shape.Name),
		attribute.Int("messages", len(prompt.Messages)),
	))
	defer span.End()

	d, err := m.next.Decide(ctx, prompt, shape)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return d, err
	}
	span.SetAttributes(attribute.Int("handoffs", len(d.Handoffs)))
	return d, nil
}

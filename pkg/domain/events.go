package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart     EventType = "turn_start"
	EventTurnEnd       EventType = "turn_end"
	EventNodeEnter     EventType = "node_enter"
	EventNodeLeave     EventType = "node_leave"
	EventHandoffDrop   EventType = "handoff_dropped"
	EventRouteRejected EventType = "route_rejected"
	EventBreaker       EventType = "breaker_tripped"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	TurnID    string    `json:"turn_id"`
}

// TurnEvent marks the beginning or the end of a turn.
type TurnEvent struct {
	EventBase
	Status      ExecutionStatus `json:"status,omitempty"`
	Invocations int             `json:"invocations,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
}

// NodeEvent represents entry or exit from an agent node.
type NodeEvent struct {
	EventBase
	Node     string        `json:"node"`
	Attempt  int           `json:"attempt"`
	Next     string        `json:"next,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// AnomalyEvent reports a recovered, non-fatal problem.
type AnomalyEvent struct {
	EventBase
	Node string `json:"node"`
	Err  error  `json:"-"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnTurnStart      func(context.Context, *TurnEvent)
	OnTurnEnd        func(context.Context, *TurnEvent)
	OnNodeEnter      func(context.Context, *NodeEvent)
	OnNodeLeave      func(context.Context, *NodeEvent)
	OnHandoffDropped func(context.Context, *AnomalyEvent)
	OnRouteRejected  func(context.Context, *AnomalyEvent)
	OnBreakerTripped func(context.Context, *AnomalyEvent)
}

// Merge combines several hook sets; each callback fans out in order.
func Merge(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		out.OnTurnStart = chain(out.OnTurnStart, h.OnTurnStart)
		out.OnTurnEnd = chain(out.OnTurnEnd, h.OnTurnEnd)
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnHandoffDropped = chain(out.OnHandoffDropped, h.OnHandoffDropped)
		out.OnRouteRejected = chain(out.OnRouteRejected, h.OnRouteRejected)
		out.OnBreakerTripped = chain(out.OnBreakerTripped, h.OnBreakerTripped)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

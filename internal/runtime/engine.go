package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/internal/validator"
	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
)

// Default ceilings.
const (
	DefaultAttemptCeiling = 3
	DefaultLoopCeiling    = 8
)

// Engine runs turns against a validated graph. It holds no per-user state
// and is safe for concurrent use by different users.
type Engine struct {
	graph          *dsl.Graph
	attemptCeiling int
	loopCeiling    int
	breakerReply   string
	logger         *slog.Logger
	hooks          domain.LifecycleHooks
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithAttemptCeiling bounds how many times one node may run per turn.
func WithAttemptCeiling(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attemptCeiling = n
		}
	}
}

// WithLoopCeiling bounds the total node invocations per turn.
func WithLoopCeiling(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.loopCeiling = n
		}
	}
}

// WithBreakerReply sets the message delivered when a ceiling trips.
func WithBreakerReply(msg string) Option {
	return func(e *Engine) {
		if msg != "" {
			e.breakerReply = msg
		}
	}
}

// New validates the graph and creates an engine for it.
func New(g *dsl.Graph, opts ...Option) (*Engine, error) {
	if err := validator.ValidateGraph(g); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	e := &Engine{
		graph:          g,
		attemptCeiling: DefaultAttemptCeiling,
		loopCeiling:    DefaultLoopCeiling,
		breakerReply:   domain.DefaultBreakerReply,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Graph returns the graph the engine runs.
func (e *Engine) Graph() *dsl.Graph {
	return e.graph
}

// Outcome summarizes one turn.
type Outcome struct {
	TurnID      string
	Start       string
	Path        []string
	Invocations int
	Status      domain.ExecutionStatus
	Breaker     *domain.BreakerTripped
	Err         error
}

// ResolveStart picks the first node of a turn. With no history the entry
// node runs; otherwise the node recorded as awaiting input by the last entry,
// if it is still a runnable node of the graph.
func (e *Engine) ResolveStart(st *domain.State) string {
	last, ok := st.LastRecord()
	if !ok {
		return e.graph.Entry
	}
	if last.ResumeAt != "" && e.graph.Runnable(last.ResumeAt) {
		return last.ResumeAt
	}
	return e.graph.Entry
}

// Run drives st through the graph until END, a sink or a breaker.
// Run mutates st in place and never returns a partially merged delta.
func (e *Engine) Run(ctx context.Context, st *domain.State, turnID string) Outcome {
	if st.Attempts == nil {
		st.Attempts = make(map[string]int)
	}
	baseline := make(map[string]int, len(st.Attempts))
	for k, v := range st.Attempts {
		baseline[k] = v
	}

	current := e.ResolveStart(st)
	out := Outcome{TurnID: turnID, Start: current}
	st.Status = domain.StatusRunning

	for {
		if current == domain.End {
			st.Status = domain.StatusDone
			break
		}
		spec, ok := e.graph.Node(current)
		if !ok {
			// Unreachable with a validated graph.
			st.LastError = fmt.Sprintf("unknown node %q", current)
			st.Status = domain.StatusFailed
			out.Err = fmt.Errorf("unknown node %q", current)
			break
		}
		if spec.Sink {
			st.Status = domain.StatusDone
			break
		}
		if err := ctx.Err(); err != nil {
			st.LastError = err.Error()
			st.Status = domain.StatusFailed
			out.Err = err
			break
		}

		if out.Invocations >= e.loopCeiling {
			out.Breaker = e.trip(ctx, st, turnID, current, domain.BreakerLoop, e.loopCeiling)
			break
		}
		if st.Attempts[current]-baseline[current] >= e.attemptCeiling {
			out.Breaker = e.trip(ctx, st, turnID, current, domain.BreakerAttempts, e.attemptCeiling)
			break
		}

		next := e.step(ctx, st, turnID, spec)
		out.Invocations++
		out.Path = append(out.Path, current)
		current = next
	}

	// Handoff scratch does not outlive the turn.
	st.Pending = nil
	st.Active = nil

	out.Status = st.Status
	return out
}

// step runs one node, merges its delta and returns the next node.
func (e *Engine) step(ctx context.Context, st *domain.State, turnID string, spec *dsl.NodeSpec) string {
	name := spec.Name
	st.Attempts[name]++
	attempt := st.Attempts[name]

	base := domain.EventBase{Type: domain.EventNodeEnter, UserID: st.UserID, TurnID: turnID}
	start := time.Now()
	if e.hooks.OnNodeEnter != nil {
		base.Timestamp = start
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: base, Node: name, Attempt: attempt})
	}

	delta := spec.Agent.Run(ctx, st.Clone())

	next, chosen, rejections := route(spec, delta)

	rec := delta.Record
	rec.Node = name
	rec.TurnID = turnID
	rec.Attempt = attempt
	rec.At = time.Now().UTC()
	for _, r := range rejections {
		rec.Rejections = append(rec.Rejections, r.Error())
	}

	st.NodeHistory = append(st.NodeHistory, rec)
	st.CurrentStep = name
	if delta.Outgoing != "" {
		st.OutgoingMessage = delta.Outgoing
	}
	if delta.Err != nil {
		st.LastError = delta.Err.Error()
	}
	if delta.Tutoring != nil {
		t := *delta.Tutoring
		st.Tutoring = &t
	}
	if delta.SetSearch {
		st.SearchResults = delta.SearchResults
	}

	// Pending handoffs are consumed here; the next node starts with none.
	st.Pending = nil
	switch {
	case chosen != nil:
		h := *chosen
		st.Active = &h
	case delta.Failed && next == name:
		// Retry keeps the input of the failed invocation.
	default:
		st.Active = nil
	}

	e.report(ctx, st, turnID, name, delta, rejections)

	log := e.logger.With("user_id", st.UserID, "turn_id", turnID, "node", name, "attempt", attempt)
	if delta.Failed {
		log.Warn("node failed", "next", next, "err", delta.Err)
	} else {
		log.Debug("node done", "next", next, "pending", len(delta.Pending))
	}

	if e.hooks.OnNodeLeave != nil {
		ev := &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, UserID: st.UserID, TurnID: turnID},
			Node:      name,
			Attempt:   attempt,
			Next:      next,
			Duration:  time.Since(start),
		}
		if delta.Err != nil {
			ev.Err = delta.Err.Error()
		}
		e.hooks.OnNodeLeave(ctx, ev)
	}
	return next
}

func (e *Engine) report(ctx context.Context, st *domain.State, turnID, node string, d agent.Delta, rejections []*domain.RoutingRejection) {
	base := func(t domain.EventType) domain.EventBase {
		return domain.EventBase{Timestamp: time.Now(), Type: t, UserID: st.UserID, TurnID: turnID}
	}
	for _, r := range rejections {
		e.logger.Warn("route rejected", "user_id", st.UserID, "turn_id", turnID, "from", r.From, "to", r.To, "fallback", r.Fallback)
		if e.hooks.OnRouteRejected != nil {
			e.hooks.OnRouteRejected(ctx, &domain.AnomalyEvent{EventBase: base(domain.EventRouteRejected), Node: node, Err: r})
		}
	}
	if e.hooks.OnHandoffDropped != nil {
		for _, m := range d.Dropped {
			e.hooks.OnHandoffDropped(ctx, &domain.AnomalyEvent{EventBase: base(domain.EventHandoffDrop), Node: node, Err: m})
		}
	}
}

// trip forces the turn to END with the breaker reply.
func (e *Engine) trip(ctx context.Context, st *domain.State, turnID, node string, reason domain.BreakerReason, limit int) *domain.BreakerTripped {
	err := &domain.BreakerTripped{Node: node, Reason: reason, Limit: limit}
	st.OutgoingMessage = e.breakerReply
	st.LastError = err.Error()
	st.Status = domain.StatusBreakerTripped
	st.Pending = nil
	st.Active = nil

	e.logger.Warn("breaker tripped", "user_id", st.UserID, "turn_id", turnID, "node", node, "reason", reason, "limit", limit)
	if e.hooks.OnBreakerTripped != nil {
		e.hooks.OnBreakerTripped(ctx, &domain.AnomalyEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventBreaker, UserID: st.UserID, TurnID: turnID},
			Node:      node,
			Err:       err,
		})
	}
	return err
}

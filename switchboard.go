package switchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/internal/runtime"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator is the high-level entry point of the library.
// It owns the per-turn loop: load, hydrate, run the graph, save.
type Orchestrator struct {
	engine   *runtime.Engine
	sessions *session.Manager
	hydrator ports.Hydrator
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	fallback string
	newID    func() string
	tracer   trace.Tracer

	// Construction inputs.
	model       ports.DecisionModel
	searcher    ports.Searcher
	store       ports.StateStore
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	graph       *dsl.Graph
	agentOpts   []agent.Option
	searchOpts  []agent.SearchOption
	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the decision model used by every agent of the default graph.
func WithModel(model ports.DecisionModel) Option {
	return func(o *Orchestrator) {
		o.model = model
	}
}

// WithSearcher enables the search agent.
func WithSearcher(searcher ports.Searcher) Option {
	return func(o *Orchestrator) {
		o.searcher = searcher
	}
}

// WithStore sets the state store (default: in-memory).
func WithStore(store ports.StateStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithHydrator attaches a read-only domain snapshot source.
func WithHydrator(h ports.Hydrator) Option {
	return func(o *Orchestrator) {
		o.hydrator = h
	}
}

// WithLocker serializes turns of one user across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.locker = locker
		o.lockTTL = ttl
	}
}

// WithGraph replaces the default tutoring graph.
func WithGraph(g *dsl.Graph) Option {
	return func(o *Orchestrator) {
		o.graph = g
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithAttemptCeiling bounds how many times one agent may run per turn.
func WithAttemptCeiling(n int) Option {
	return func(o *Orchestrator) {
		o.runtimeOpts = append(o.runtimeOpts, runtime.WithAttemptCeiling(n))
	}
}

// WithLoopCeiling bounds the total agent invocations per turn.
func WithLoopCeiling(n int) Option {
	return func(o *Orchestrator) {
		o.runtimeOpts = append(o.runtimeOpts, runtime.WithLoopCeiling(n))
	}
}

// WithBreakerReply sets the message delivered when a ceiling trips.
func WithBreakerReply(msg string) Option {
	return func(o *Orchestrator) {
		o.runtimeOpts = append(o.runtimeOpts, runtime.WithBreakerReply(msg))
	}
}

// WithFallbackReply sets the message delivered when a turn produced none.
func WithFallbackReply(msg string) Option {
	return func(o *Orchestrator) {
		if msg != "" {
			o.fallback = msg
		}
	}
}

// WithDecisionTimeout bounds every decision model call.
func WithDecisionTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.agentOpts = append(o.agentOpts, agent.WithTimeout(d))
	}
}

// WithPrompts replaces the embedded agent prompts.
func WithPrompts(p *agent.Prompts) Option {
	return func(o *Orchestrator) {
		o.agentOpts = append(o.agentOpts, agent.WithPrompts(p))
	}
}

// WithSearchResults sets how many hits the search agent requests.
func WithSearchResults(n int) Option {
	return func(o *Orchestrator) {
		o.searchOpts = append(o.searchOpts, agent.WithMaxResults(n))
	}
}

// WithSearchThreshold sets the minimum score of kept search hits when the
// tutor's handoff does not name one.
func WithSearchThreshold(f float64) Option {
	return func(o *Orchestrator) {
		o.searchOpts = append(o.searchOpts, agent.WithScoreThreshold(f))
	}
}

// WithTracer sets the tracer used for turn spans. Defaults to the global
// OpenTelemetry provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

// WithIDGenerator overrides turn id generation (default: UUIDv4).
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// New initializes an Orchestrator. A decision model is required unless a
// custom graph is provided.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		fallback: domain.DefaultFallbackReply,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure logger is initialized (so we don't pass nil down, which would overwrite defaults)
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.store == nil {
		o.store = memory.NewStore()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/aretw0/switchboard")
	}

	if o.graph == nil {
		if o.model == nil {
			return nil, errors.New("a decision model is required (use WithModel)")
		}
		agentOpts := append([]agent.Option{agent.WithLogger(o.logger)}, o.agentOpts...)
		searchOpts := append([]agent.SearchOption{agent.WithSearchLogger(o.logger)}, o.searchOpts...)
		g, err := DefaultGraph(o.model, o.searcher, agentOpts, searchOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to build graph: %w", err)
		}
		o.graph = g
	}

	runtimeOpts := append([]runtime.Option{
		runtime.WithLogger(o.logger),
		runtime.WithLifecycleHooks(o.hooks),
	}, o.runtimeOpts...)
	eng, err := runtime.New(o.graph, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	o.engine = eng

	sessionOpts := []session.Option{session.WithLogger(o.logger)}
	if o.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(o.locker), session.WithLockTTL(o.lockTTL))
	}
	o.sessions = session.NewManager(o.store, sessionOpts...)

	return o, nil
}

// Reply is the outcome of one turn.
type Reply struct {
	UserID      string                 `json:"user_id"`
	TurnID      string                 `json:"turn_id"`
	Message     string                 `json:"message"`
	Status      domain.ExecutionStatus `json:"status"`
	Start       string                 `json:"start"`
	Path        []string               `json:"path"`
	Invocations int                    `json:"invocations"`
}

// Turn processes one inbound message for userID and returns the reply.
//
// Every agent failure degrades into a reply. The returned error is non-nil
// only for persistence failures (*domain.PersistenceError), lock acquisition
// failures, or a cancelled ctx.
func (o *Orchestrator) Turn(ctx context.Context, userID, message string) (*Reply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	ctx, span := o.tracer.Start(ctx, "switchboard.Turn", trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	var reply *Reply
	err := o.sessions.WithLock(ctx, userID, func(ctx context.Context) error {
		var err error
		reply, err = o.turn(ctx, userID, message)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if reply != nil {
		span.SetAttributes(
			attribute.String("turn_id", reply.TurnID),
			attribute.String("status", string(reply.Status)),
			attribute.Int("invocations", reply.Invocations),
		)
	}
	return reply, err
}

func (o *Orchestrator) turn(ctx context.Context, userID, message string) (*Reply, error) {
	store := o.sessions.Store()

	st, err := o.sessions.LoadOrNew(ctx, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load", UserID: userID, Err: err}
	}

	if o.hydrator != nil {
		snap, err := o.hydrator.Hydrate(ctx, userID)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "hydrate", UserID: userID, Err: err}
		}
		st.Snapshot = snap
	}

	turnID := o.newID()
	started := time.Now()
	log := o.logger.With("user_id", userID, "turn_id", turnID)

	st.ResetTurn()
	st.CurrentMessage = message
	st.Conversation = append(st.Conversation, domain.Message{Role: domain.RoleUser, Content: message})
	st.Turns++

	if o.hooks.OnTurnStart != nil {
		o.hooks.OnTurnStart(ctx, &domain.TurnEvent{
			EventBase: domain.EventBase{Timestamp: started, Type: domain.EventTurnStart, UserID: userID, TurnID: turnID},
		})
	}

	out := o.engine.Run(ctx, st, turnID)

	if st.OutgoingMessage == "" && out.Err == nil {
		st.OutgoingMessage = o.fallback
	}
	if st.OutgoingMessage != "" {
		st.Conversation = append(st.Conversation, domain.Message{Role: domain.RoleAssistant, Content: st.OutgoingMessage})
	}
	st.UpdatedAt = time.Now().UTC()

	// A finished turn is saved even if the caller has gone away.
	if err := store.Save(context.WithoutCancel(ctx), userID, st); err != nil {
		log.Error("failed to save state", "err", err)
		return nil, &domain.PersistenceError{Op: "save", UserID: userID, Err: err}
	}

	if o.hooks.OnTurnEnd != nil {
		o.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
			EventBase:   domain.EventBase{Timestamp: time.Now(), Type: domain.EventTurnEnd, UserID: userID, TurnID: turnID},
			Status:      st.Status,
			Invocations: out.Invocations,
			Duration:    time.Since(started),
		})
	}

	log.Info("turn complete",
		"start", out.Start,
		"path", strings.Join(out.Path, ">"),
		"status", st.Status,
		"duration", time.Since(started),
	)

	reply := &Reply{
		UserID:      userID,
		TurnID:      turnID,
		Message:     st.OutgoingMessage,
		Status:      st.Status,
		Start:       out.Start,
		Path:        out.Path,
		Invocations: out.Invocations,
	}
	if out.Err != nil {
		return reply, out.Err
	}
	return reply, nil
}

// Inspect returns the stored state of a user.
func (o *Orchestrator) Inspect(ctx context.Context, userID string) (*domain.State, error) {
	return o.sessions.Load(ctx, userID)
}

// Reset deletes the stored state of a user. The next turn starts fresh.
func (o *Orchestrator) Reset(ctx context.Context, userID string) error {
	return o.sessions.Delete(ctx, userID)
}

// Sessions lists the users with stored state.
func (o *Orchestrator) Sessions(ctx context.Context) ([]string, error) {
	return o.sessions.List(ctx)
}

// Graph returns the agent graph the orchestrator runs.
func (o *Orchestrator) Graph() *dsl.Graph {
	return o.engine.Graph()
}

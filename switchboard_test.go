package switchboard_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/pkg/adapters/file"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/persistence/middleware"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTurn_GreetingReply(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Respond("Hi! How can I help?", domain.RoutingAgent))
	store := memory.NewStore()
	orc, err := switchboard.New(switchboard.WithModel(model), switchboard.WithStore(store))
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "+254700000001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", reply.Message)
	assert.Equal(t, domain.StatusDone, reply.Status)

	st, err := store.Load(context.Background(), "+254700000001")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help?", st.OutgoingMessage)
	assert.Len(t, st.NodeHistory, 1)
	assert.Equal(t, 1, st.Attempts[domain.RoutingAgent])
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "Hi! How can I help?"},
	}, st.Conversation)
}

func TestTurn_MarkupOnlyTutorReplyKeepsSessionLoadable(t *testing.T) {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Computer Science", 8)).
		On(domain.TutorAgent,
			scripted.Respond("`print(1)`", domain.TutorAgent),
			scripted.Respond("It prints the number one.", domain.TutorAgent),
		)
	store := file.New(t.TempDir())
	orc, err := switchboard.New(switchboard.WithModel(model), switchboard.WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	reply, err := orc.Turn(ctx, "u", "show me python")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFallbackReply, reply.Message)

	st, err := store.Load(ctx, "u")
	require.NoError(t, err)
	last, ok := st.LastRecord()
	require.True(t, ok)
	assert.Equal(t, domain.TutorAgent, last.Node)
	assert.Empty(t, last.Decision)
	assert.Len(t, last.Dropped, 1)

	reply, err = orc.Turn(ctx, "u", "what does it do?")
	require.NoError(t, err)
	assert.Equal(t, "It prints the number one.", reply.Message)
}

func TestTurn_RedactedSaveLeavesNoHandoffScratch(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Respond("We will call you on +254712345678", domain.RoutingAgent))
	inner := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{`\+2547\d{8}`})
	require.NoError(t, err)
	orc, err := switchboard.New(switchboard.WithModel(model), switchboard.WithStore(middleware.Chain(inner, pii)))
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "u", "call me")
	require.NoError(t, err)
	assert.Equal(t, "We will call you on +254712345678", reply.Message)

	saved, err := inner.Load(context.Background(), "u")
	require.NoError(t, err)
	assert.Nil(t, saved.Active)
	assert.Empty(t, saved.Pending)
	assert.Equal(t, "We will call you on ***", saved.OutgoingMessage)
	params := saved.NodeHistory[0].Decision[0].Params.(domain.RespondParameters)
	assert.Equal(t, "We will call you on ***", params.MessageToStudent)
}

func TestTurn_ShapeMismatchDropsEntry(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Decide(
		scripted.Entry(domain.TutorAgent, domain.RespondParameters{MessageToStudent: "Hi", AgentAfterResponse: domain.RoutingAgent}),
	))
	orc, err := switchboard.New(switchboard.WithModel(model))
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "u", "teach me")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFallbackReply, reply.Message)
	assert.Equal(t, []string{domain.RoutingAgent}, reply.Path)

	st, err := orc.Inspect(context.Background(), "u")
	require.NoError(t, err)
	assert.Empty(t, st.Pending)
	require.Len(t, st.NodeHistory, 1)
	assert.Len(t, st.NodeHistory[0].Dropped, 1)
}

func TestTurn_AlwaysTimesOut(t *testing.T) {
	model := scripted.New().Fallback(func(ports.Prompt) (domain.Decision, error) {
		return domain.Decision{}, errors.New("unused")
	})
	model.On(domain.RoutingAgent, scripted.Timeout())
	orc, err := switchboard.New(
		switchboard.WithModel(model),
		switchboard.WithDecisionTimeout(5*time.Millisecond),
	)
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "u", "hello")
	require.NoError(t, err, "breakers are not surfaced as errors")
	assert.Equal(t, domain.DefaultBreakerReply, reply.Message)
	assert.Equal(t, domain.StatusBreakerTripped, reply.Status)

	st, err := orc.Inspect(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, st.NodeHistory, 3)
	for _, rec := range st.NodeHistory {
		assert.Equal(t, domain.KindDecision, rec.ErrorKind)
	}
	assert.Contains(t, st.LastError, "breaker tripped")
}

func TestTurn_ResumesFromLastEntry(t *testing.T) {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Chemistry", 11)).
		On(domain.TutorAgent,
			scripted.Respond("What is an atom?", domain.TutorAgent),
			scripted.Respond("Correct!", domain.TutorAgent),
		)
	orc, err := switchboard.New(switchboard.WithModel(model))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := orc.Turn(ctx, "u", "I want chemistry, form 3")
	require.NoError(t, err)
	assert.Equal(t, domain.RoutingAgent, first.Start)
	assert.Equal(t, "What is an atom?", first.Message)

	second, err := orc.Turn(ctx, "u", "the smallest unit of matter")
	require.NoError(t, err)
	assert.Equal(t, domain.TutorAgent, second.Start, "second turn resumes where the first left off")
	assert.Equal(t, []string{domain.TutorAgent}, second.Path)
	assert.Equal(t, "Correct!", second.Message)

	st, err := orc.Inspect(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Attempts[domain.RoutingAgent])
	assert.Equal(t, 2, st.Attempts[domain.TutorAgent])
	assert.Equal(t, 2, st.Turns)
	assert.Len(t, st.Conversation, 4)
	require.NotNil(t, st.Tutoring)
	assert.Equal(t, "Chemistry", st.Tutoring.Subject)
}

type failingStore struct {
	*memory.Store
	loadErr, saveErr error
}

func (f *failingStore) Load(ctx context.Context, id string) (*domain.State, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.Store.Load(ctx, id)
}

func (f *failingStore) Save(ctx context.Context, id string, st *domain.State) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.Save(ctx, id, st)
}

func TestTurn_PersistenceErrorsSurface(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name  string
		store *failingStore
		op    string
	}{
		{"load", &failingStore{Store: memory.NewStore(), loadErr: boom}, "load"},
		{"save", &failingStore{Store: memory.NewStore(), saveErr: boom}, "save"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orc, err := switchboard.New(switchboard.WithModel(scripted.New()), switchboard.WithStore(tt.store))
			require.NoError(t, err)

			reply, err := orc.Turn(context.Background(), "u", "hello")
			assert.Nil(t, reply)

			var perr *domain.PersistenceError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.op, perr.Op)
			assert.ErrorIs(t, err, boom)
		})
	}
}

type staticHydrator struct {
	snap domain.Snapshot
	err  error
}

func (h staticHydrator) Hydrate(context.Context, string) (domain.Snapshot, error) {
	return h.snap, h.err
}

func TestTurn_HydratesSnapshotBeforeTurn(t *testing.T) {
	model := scripted.New()
	snap := domain.Snapshot{Goals: []domain.Goal{{ID: 1, Title: "Run a marathon", Status: "active"}}}
	orc, err := switchboard.New(switchboard.WithModel(model), switchboard.WithHydrator(staticHydrator{snap: snap}))
	require.NoError(t, err)

	_, err = orc.Turn(context.Background(), "u", "how am I doing?")
	require.NoError(t, err)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Run a marathon")

	_, err = switchboardWithHydrateError(t).Turn(context.Background(), "u", "hi")
	var perr *domain.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "hydrate", perr.Op)
}

func switchboardWithHydrateError(t *testing.T) *switchboard.Orchestrator {
	orc, err := switchboard.New(
		switchboard.WithModel(scripted.New()),
		switchboard.WithHydrator(staticHydrator{err: errors.New("db down")}),
	)
	require.NoError(t, err)
	return orc
}

func TestTurn_ConcurrentTurnsForOneUserAreSerialized(t *testing.T) {
	orc, err := switchboard.New(switchboard.WithModel(scripted.New()))
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := orc.Turn(ctx, "same-user", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := orc.Inspect(ctx, "same-user")
	require.NoError(t, err)
	assert.Len(t, st.Conversation, 40)
	assert.Len(t, st.NodeHistory, 20)
	assert.Equal(t, 20, st.Turns)
}

func TestTurn_TurnStartClearsScratch(t *testing.T) {
	store := memory.NewStore()
	stale := domain.NewState("u")
	stale.OutgoingMessage = "old reply"
	stale.LastError = "old error"
	stale.Pending = []domain.Handoff{{Agent: domain.TutorAgent, Params: domain.TutorParameters{Subject: "x", Grade: 1}}}
	require.NoError(t, store.Save(context.Background(), "u", stale))

	model := scripted.New().On(domain.RoutingAgent, scripted.Decide())
	orc, err := switchboard.New(switchboard.WithModel(model), switchboard.WithStore(store), switchboard.WithFallbackReply("done"))
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "u", "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Message)

	st, _ := store.Load(context.Background(), "u")
	assert.Empty(t, st.LastError)
	assert.Empty(t, st.Pending)
}

func TestTurn_IDGeneratorAndHooks(t *testing.T) {
	var started, ended []string
	orc, err := switchboard.New(
		switchboard.WithModel(scripted.New()),
		switchboard.WithIDGenerator(func() string { return "turn-42" }),
		switchboard.WithLifecycleHooks(domain.LifecycleHooks{
			OnTurnStart: func(_ context.Context, ev *domain.TurnEvent) { started = append(started, ev.TurnID) },
			OnTurnEnd:   func(_ context.Context, ev *domain.TurnEvent) { ended = append(ended, string(ev.Status)) },
		}),
	)
	require.NoError(t, err)

	reply, err := orc.Turn(context.Background(), "u", "hi")
	require.NoError(t, err)
	assert.Equal(t, "turn-42", reply.TurnID)
	assert.Equal(t, []string{"turn-42"}, started)
	assert.Equal(t, []string{string(domain.StatusDone)}, ended)
}

func TestTurn_AdminOperations(t *testing.T) {
	orc, err := switchboard.New(switchboard.WithModel(scripted.New()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = orc.Turn(ctx, "a", "hi")
	require.NoError(t, err)
	_, err = orc.Turn(ctx, "b", "hi")
	require.NoError(t, err)

	users, err := orc.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)

	require.NoError(t, orc.Reset(ctx, "a"))
	_, err = orc.Inspect(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestNew_Validation(t *testing.T) {
	_, err := switchboard.New()
	assert.Error(t, err, "a model is required for the default graph")

	_, err = switchboard.New(switchboard.WithModel(scripted.New()))
	assert.NoError(t, err)

	orc, err := switchboard.New(switchboard.WithModel(scripted.New()))
	require.NoError(t, err)
	_, ok := orc.Graph().Node(domain.SearchAgent)
	assert.False(t, ok, "search agent requires a searcher")

	_, err = orc.Turn(context.Background(), "  ", "hi")
	assert.Error(t, err)
}

func TestTurn_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	orc, err := switchboard.New(
		switchboard.WithModel(scripted.New()),
		switchboard.WithTracer(tp.Tracer("test")),
		switchboard.WithIDGenerator(func() string { return "t-1" }),
	)
	require.NoError(t, err)

	_, err = orc.Turn(context.Background(), "u", "hi")
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "switchboard.Turn", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "u", attrs["user_id"])
	assert.Equal(t, "t-1", attrs["turn_id"])
	assert.Equal(t, string(domain.StatusDone), attrs["status"])
}

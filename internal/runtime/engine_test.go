package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/switchboard/internal/runtime"
	"github.com/aretw0/switchboard/pkg/adapters/scripted"
	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFunc func(context.Context, ports.SearchRequest) ([]domain.SearchResult, error)

func (f searchFunc) Search(ctx context.Context, req ports.SearchRequest) ([]domain.SearchResult, error) {
	return f(ctx, req)
}

func tutorGraph(t *testing.T, model ports.DecisionModel, searcher ports.Searcher, opts ...runtime.Option) *runtime.Engine {
	t.Helper()
	b := dsl.New(domain.RoutingAgent)
	b.Add(agent.NewRouter(model, agent.WithTimeout(20*time.Millisecond))).
		To(domain.RespondToUser, domain.TutorAgent).
		Default(domain.End)
	b.Add(agent.NewTutor(model, agent.WithTimeout(20*time.Millisecond))).
		To(domain.RespondToUser, domain.SearchAgent).
		Default(domain.RespondToUser)
	b.Add(agent.NewSearch(searcher)).
		Always(domain.TutorAgent)
	b.Sink(domain.RespondToUser)

	g, err := b.Build()
	require.NoError(t, err)
	e, err := runtime.New(g, opts...)
	require.NoError(t, err)
	return e
}

func newTurn(msg string) *domain.State {
	st := domain.NewState("user-1")
	st.CurrentMessage = msg
	st.Conversation = append(st.Conversation, domain.Message{Role: domain.RoleUser, Content: msg})
	return st
}

func TestEngine_RespondDirectly(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Respond("Hi! How can I help?", domain.RoutingAgent))
	e := tutorGraph(t, model, nil)

	st := newTurn("hello")
	out := e.Run(context.Background(), st, "turn-1")

	assert.Equal(t, domain.StatusDone, out.Status)
	assert.Equal(t, []string{domain.RoutingAgent}, out.Path)
	assert.Equal(t, "Hi! How can I help?", st.OutgoingMessage)
	assert.Len(t, st.NodeHistory, 1)
	assert.Equal(t, 1, st.Attempts[domain.RoutingAgent])
	assert.Empty(t, st.Pending)
	assert.Equal(t, "turn-1", st.NodeHistory[0].TurnID)
	assert.Equal(t, domain.RoutingAgent, st.CurrentStep)
}

func TestEngine_ShapeMismatchFallsThrough(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Decide(
		scripted.Entry(domain.TutorAgent, domain.RespondParameters{MessageToStudent: "Hi", AgentAfterResponse: domain.RoutingAgent}),
	))
	var dropped int
	e := tutorGraph(t, model, nil, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnHandoffDropped: func(context.Context, *domain.AnomalyEvent) { dropped++ },
	}))

	st := newTurn("teach me")
	out := e.Run(context.Background(), st, "t")

	assert.Equal(t, domain.StatusDone, out.Status)
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.OutgoingMessage)
	require.Len(t, st.NodeHistory, 1)
	assert.Len(t, st.NodeHistory[0].Dropped, 1)
	assert.False(t, st.NodeHistory[0].Failed())
	assert.Equal(t, 1, dropped)
}

func TestEngine_TimeoutTripsAttemptBreaker(t *testing.T) {
	for _, start := range []string{domain.RoutingAgent, domain.TutorAgent} {
		t.Run(start, func(t *testing.T) {
			model := scripted.New().
				On(domain.RoutingAgent, scripted.Timeout()).
				On(domain.TutorAgent, scripted.Timeout())
			e := tutorGraph(t, model, nil)

			st := newTurn("hello")
			if start != domain.RoutingAgent {
				st.NodeHistory = append(st.NodeHistory, domain.NodeRecord{Node: domain.RoutingAgent, ResumeAt: start})
			}
			before := len(st.NodeHistory)

			out := e.Run(context.Background(), st, "t")

			require.NotNil(t, out.Breaker)
			assert.Equal(t, domain.BreakerAttempts, out.Breaker.Reason)
			assert.Equal(t, domain.StatusBreakerTripped, st.Status)
			assert.Equal(t, domain.DefaultBreakerReply, st.OutgoingMessage)
			assert.NotEmpty(t, st.LastError)

			entries := st.NodeHistory[before:]
			require.Len(t, entries, runtime.DefaultAttemptCeiling)
			for i, rec := range entries {
				assert.Equal(t, start, rec.Node)
				assert.Equal(t, domain.KindDecision, rec.ErrorKind)
				assert.Contains(t, rec.Error, "timed out")
				assert.Equal(t, i+1, rec.Attempt)
			}
		})
	}
}

// loopNode always hands control back to itself.
type loopNode struct {
	t *testing.T
}

func (n loopNode) Name() string { return domain.TutorAgent }

func (n loopNode) Run(_ context.Context, st *domain.State) agent.Delta {
	assert.Empty(n.t, st.Pending, "pending must be consumed before every invocation")
	h := domain.Handoff{Agent: domain.TutorAgent, Params: domain.TutorParameters{Subject: "Maths", Grade: 4}}
	return agent.Delta{
		Record:  domain.NodeRecord{Decision: []domain.Handoff{h}},
		Pending: []domain.Handoff{h},
	}
}

func loopEngine(t *testing.T, opts ...runtime.Option) *runtime.Engine {
	b := dsl.New(domain.TutorAgent)
	b.Add(loopNode{t: t}).To(domain.TutorAgent).Default(domain.End)
	g, err := b.Build()
	require.NoError(t, err)
	e, err := runtime.New(g, opts...)
	require.NoError(t, err)
	return e
}

func TestEngine_SelfLoopStopsAtAttemptCeiling(t *testing.T) {
	for _, ceiling := range []int{1, 3, 5} {
		e := loopEngine(t, runtime.WithAttemptCeiling(ceiling), runtime.WithLoopCeiling(100))
		st := newTurn("loop")

		out := e.Run(context.Background(), st, "t")

		require.NotNil(t, out.Breaker)
		assert.Equal(t, domain.BreakerAttempts, out.Breaker.Reason)
		assert.Equal(t, ceiling, out.Invocations)
		assert.Len(t, st.NodeHistory, ceiling)
		assert.Equal(t, domain.DefaultBreakerReply, st.OutgoingMessage)
	}
}

func TestEngine_LoopCeiling(t *testing.T) {
	var tripped *domain.AnomalyEvent
	e := loopEngine(t,
		runtime.WithAttemptCeiling(100),
		runtime.WithLoopCeiling(4),
		runtime.WithBreakerReply("try later"),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnBreakerTripped: func(_ context.Context, ev *domain.AnomalyEvent) { tripped = ev },
		}),
	)
	st := newTurn("loop")

	out := e.Run(context.Background(), st, "t")

	require.NotNil(t, out.Breaker)
	assert.Equal(t, domain.BreakerLoop, out.Breaker.Reason)
	assert.Len(t, st.NodeHistory, 4)
	assert.Equal(t, "try later", st.OutgoingMessage)
	require.NotNil(t, tripped)
	var be *domain.BreakerTripped
	assert.True(t, errors.As(tripped.Err, &be))
}

func TestEngine_AttemptsAreMonotonicAcrossTurns(t *testing.T) {
	model := scripted.New().On(domain.RoutingAgent, scripted.Respond("ok", domain.RoutingAgent))
	e := tutorGraph(t, model, nil, runtime.WithAttemptCeiling(1))

	st := newTurn("one")
	for i := 1; i <= 3; i++ {
		st.ResetTurn()
		out := e.Run(context.Background(), st, "t")
		assert.Nil(t, out.Breaker, "per-turn ceiling must not accumulate across turns")
		assert.Equal(t, i, st.Attempts[domain.RoutingAgent])
	}
	assert.Len(t, st.NodeHistory, 3)
}

func TestEngine_RoutingRejection(t *testing.T) {
	t.Run("no allowed target falls back to default", func(t *testing.T) {
		model := scripted.New().On(domain.RoutingAgent, scripted.Search("volcanoes"))
		var rejected int
		e := tutorGraph(t, model, nil, runtime.WithLifecycleHooks(domain.LifecycleHooks{
			OnRouteRejected: func(context.Context, *domain.AnomalyEvent) { rejected++ },
		}))

		st := newTurn("volcanoes")
		out := e.Run(context.Background(), st, "t")

		assert.Equal(t, []string{domain.RoutingAgent}, out.Path)
		require.Len(t, st.NodeHistory, 1)
		require.Len(t, st.NodeHistory[0].Rejections, 1)
		assert.Contains(t, st.NodeHistory[0].Rejections[0], "search_agent")
		assert.Contains(t, st.NodeHistory[0].Rejections[0], domain.End)
		assert.Equal(t, 1, rejected)
		assert.Equal(t, 0, st.Attempts[domain.SearchAgent])
	})

	t.Run("later allowed target wins", func(t *testing.T) {
		model := scripted.New().On(domain.RoutingAgent, scripted.Decide(
			scripted.Entry(domain.SearchAgent, domain.SearchParameters{Query: "x"}),
			scripted.Entry(domain.RespondToUser, domain.RespondParameters{MessageToStudent: "Karibu!"}),
		))
		e := tutorGraph(t, model, nil)

		st := newTurn("hi")
		e.Run(context.Background(), st, "t")

		assert.Equal(t, "Karibu!", st.OutgoingMessage)
		require.Len(t, st.NodeHistory[0].Rejections, 1)
		assert.Contains(t, st.NodeHistory[0].Rejections[0], domain.RespondToUser)
	})
}

func TestEngine_TutorSearchRoundTrip(t *testing.T) {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Biology", 7)).
		On(domain.TutorAgent,
			scripted.Search("photosynthesis grade 7"),
			scripted.Respond("**Plants** make food using `light`.", domain.TutorAgent),
		)
	var queries []string
	searcher := searchFunc(func(_ context.Context, req ports.SearchRequest) ([]domain.SearchResult, error) {
		queries = append(queries, req.Query)
		return []domain.SearchResult{
			{Title: "Photosynthesis", URL: "https://example.org/p", Content: "...", Score: 0.9},
			{Title: "Noise", URL: "https://example.org/n", Score: 0.1},
		}, nil
	})
	e := tutorGraph(t, model, searcher)

	st := newTurn("teach me photosynthesis")
	out := e.Run(context.Background(), st, "t")

	assert.Equal(t, []string{domain.RoutingAgent, domain.TutorAgent, domain.SearchAgent, domain.TutorAgent}, out.Path)
	assert.Equal(t, domain.StatusDone, out.Status)
	assert.Equal(t, "Plants make food using .", st.OutgoingMessage)
	assert.Equal(t, []string{"photosynthesis grade 7"}, queries)
	require.Len(t, st.SearchResults, 1)
	assert.Equal(t, "Photosynthesis", st.SearchResults[0].Title)
	require.NotNil(t, st.Tutoring)
	assert.Equal(t, domain.TutorParameters{Subject: "Biology", Grade: 7}, *st.Tutoring)
	assert.Equal(t, 2, st.Attempts[domain.TutorAgent])
	assert.Equal(t, 1, st.Attempts[domain.SearchAgent])
	assert.Len(t, st.NodeHistory, 4)

	last, _ := st.LastRecord()
	assert.Equal(t, domain.TutorAgent, last.ResumeAt)
	assert.Equal(t, domain.TutorAgent, e.ResolveStart(st))

	// The tutor prompt carries the search results of the same turn.
	calls := model.Calls()
	assert.Contains(t, calls[len(calls)-1].System, "Photosynthesis")
}

func TestEngine_SearchErrorStillReturnsToTutor(t *testing.T) {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Physics", 10)).
		On(domain.TutorAgent, scripted.Search("ohm's law"), scripted.Respond("V = IR", domain.TutorAgent))
	searcher := searchFunc(func(context.Context, ports.SearchRequest) ([]domain.SearchResult, error) {
		return nil, errors.New("upstream 503")
	})
	e := tutorGraph(t, model, searcher)

	st := newTurn("ohm")
	out := e.Run(context.Background(), st, "t")

	assert.Equal(t, domain.SearchAgent, out.Path[2])
	assert.Equal(t, domain.TutorAgent, out.Path[3])
	assert.Equal(t, domain.KindSearch, st.NodeHistory[2].ErrorKind)
	assert.Equal(t, "V = IR", st.OutgoingMessage)
}

func TestEngine_ResolveStart(t *testing.T) {
	e := tutorGraph(t, scripted.New(), nil)

	st := domain.NewState("u")
	assert.Equal(t, domain.RoutingAgent, e.ResolveStart(st))

	st.NodeHistory = append(st.NodeHistory, domain.NodeRecord{Node: domain.RoutingAgent, ResumeAt: domain.TutorAgent})
	assert.Equal(t, domain.TutorAgent, e.ResolveStart(st))

	st.NodeHistory = append(st.NodeHistory, domain.NodeRecord{Node: domain.TutorAgent, ResumeAt: domain.RespondToUser})
	assert.Equal(t, domain.RoutingAgent, e.ResolveStart(st), "sinks are not resumable")

	st.NodeHistory = append(st.NodeHistory, domain.NodeRecord{Node: domain.TutorAgent, ResumeAt: "ghost"})
	assert.Equal(t, domain.RoutingAgent, e.ResolveStart(st))

	st.NodeHistory = append(st.NodeHistory, domain.NodeRecord{Node: domain.TutorAgent, Error: "boom"})
	assert.Equal(t, domain.RoutingAgent, e.ResolveStart(st))
}

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	script := func() *scripted.Model {
		return scripted.New().
			On(domain.RoutingAgent, scripted.Tutor("Maths", 5)).
			On(domain.TutorAgent, scripted.Fail(errors.New("bad json")), scripted.Respond("2 + 2 = 4", domain.TutorAgent))
	}
	snapshot := newTurn("what is 2+2")

	run := func() (*domain.State, runtime.Outcome) {
		st := snapshot.Clone()
		out := tutorGraph(t, script(), nil).Run(context.Background(), st, "replay")
		return st, out
	}
	first, out1 := run()
	second, out2 := run()

	assert.Equal(t, out1.Path, out2.Path)
	assert.Equal(t, out1.Invocations, out2.Invocations)
	assert.LessOrEqual(t, out1.Invocations, runtime.DefaultLoopCeiling)
	assert.Equal(t, first.OutgoingMessage, second.OutgoingMessage)
	assert.Equal(t, first.Attempts, second.Attempts)
	require.Len(t, second.NodeHistory, len(first.NodeHistory))
	for i := range first.NodeHistory {
		assert.Equal(t, first.NodeHistory[i].Node, second.NodeHistory[i].Node)
		assert.Equal(t, first.NodeHistory[i].Error, second.NodeHistory[i].Error)
	}
	assert.Empty(t, snapshot.NodeHistory, "replays must not touch the snapshot")
}

func TestEngine_HistoryCountsInvocations(t *testing.T) {
	model := scripted.New().
		On(domain.RoutingAgent, scripted.Tutor("Maths", 5)).
		On(domain.TutorAgent, scripted.Fail(errors.New("x")), scripted.Respond("ok", domain.TutorAgent))
	var enters, leaves int
	e := tutorGraph(t, model, nil, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { enters++ },
		OnNodeLeave: func(context.Context, *domain.NodeEvent) { leaves++ },
	}))

	st := newTurn("maths")
	out := e.Run(context.Background(), st, "t")

	assert.Equal(t, out.Invocations, len(st.NodeHistory))
	assert.Equal(t, out.Invocations, enters)
	assert.Equal(t, out.Invocations, leaves)
	assert.True(t, st.NodeHistory[1].Failed())
	assert.Equal(t, domain.TutorAgent, st.NodeHistory[2].Node, "failed node retries itself")
	require.Len(t, st.NodeHistory[2].Decision, 1)
	assert.Equal(t, domain.RespondToUser, st.NodeHistory[2].Decision[0].Agent)
	assert.Nil(t, st.Active, "handoff scratch is cleared when the turn ends")
	assert.Empty(t, st.Pending)
}

func TestEngine_CancelledContext(t *testing.T) {
	e := tutorGraph(t, scripted.New(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := newTurn("hi")
	out := e.Run(ctx, st, "t")

	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, domain.StatusFailed, st.Status)
	assert.Empty(t, st.NodeHistory)
	assert.Empty(t, st.OutgoingMessage)
}

func TestNew_RejectsInvalidGraph(t *testing.T) {
	b := dsl.New(domain.RoutingAgent)
	b.Add(agent.NewRouter(scripted.New())).To(domain.TutorAgent).Default(domain.End)
	g, err := b.Build()
	require.NoError(t, err)

	_, err = runtime.New(g)
	assert.ErrorContains(t, err, "invalid graph")
}

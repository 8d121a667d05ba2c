package agent

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Router is the entry agent of the graph.
type Router struct {
	decider
}

// NewRouter creates the routing agent.
func NewRouter(model ports.DecisionModel, opts ...Option) *Router {
	return &Router{decider: newDecider(domain.RoutingAgent, model, opts)}
}

// Name implements Node.
func (r *Router) Name() string { return r.name }

// Run implements Node.
func (r *Router) Run(ctx context.Context, st *domain.State) Delta {
	return r.decide(ctx, st, PromptData{
		UserID:   st.UserID,
		Message:  st.CurrentMessage,
		Snapshot: st.Snapshot,
	})
}

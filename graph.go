package switchboard

import (
	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultGraph declares the tutoring topology:
//
//	routing_agent -> respond_to_user | tutor_agent   (default END)
//	tutor_agent   -> respond_to_user | search_agent  (default respond_to_user)
//	search_agent  -> tutor_agent                     (unconditional)
//
// Without a searcher the search agent is left out and the tutor may only reply.
func DefaultGraph(model ports.DecisionModel, searcher ports.Searcher, agentOpts []agent.Option, searchOpts []agent.SearchOption) (*dsl.Graph, error) {
	b := dsl.New(domain.RoutingAgent)

	b.Add(agent.NewRouter(model, agentOpts...)).
		To(domain.RespondToUser, domain.TutorAgent).
		Default(domain.End)

	tutor := b.Add(agent.NewTutor(model, agentOpts...)).
		To(domain.RespondToUser).
		Default(domain.RespondToUser)

	if searcher != nil {
		tutor.To(domain.SearchAgent)
		b.Add(agent.NewSearch(searcher, searchOpts...)).
			Always(domain.TutorAgent)
	}

	b.Sink(domain.RespondToUser)
	return b.Build()
}

/*
Package dsl provides a fluent builder for declaring switchboard agent graphs.

Each node declares a fixed allow-list of successors, a default successor used
when a decision targets anything else, an error successor and, optionally, an
unconditional edge. Sinks are delivery targets that end the turn without
running an agent.

Example usage:

	b := dsl.New(domain.RoutingAgent)

	b.Add(agent.NewRouter(model)).
		To(domain.RespondToUser, domain.TutorAgent).
		Default(domain.End)

	b.Add(agent.NewTutor(model)).
		To(domain.RespondToUser, domain.SearchAgent).
		Default(domain.RespondToUser)

	b.Add(agent.NewSearch(searcher)).
		Always(domain.TutorAgent)

	b.Sink(domain.RespondToUser)

	graph, err := b.Build()
*/
package dsl

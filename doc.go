/*
Package switchboard orchestrates a small graph of conversational agents, one
user turn at a time.

Each inbound message runs through a fixed set of agent roles wired by
conditional edges: a routing agent greets and gathers context, a tutor agent
teaches, a search agent fetches reference material, and respond_to_user
delivers the reply. A decision model turns every agent prompt into a list of
handoffs; the orchestrator validates them, routes along the allowed edges and
stops at a sink, an empty decision, or a breaker.

# Key Features

  - Bounded Turns: per-node attempt ceilings and a per-turn loop ceiling always end the turn.
  - Auditable: every agent invocation appends exactly one node_history entry, including failures.
  - Safe Routing: agents may only hand off to their declared successors.
  - Durable: state is loaded and saved around each turn through a pluggable StateStore.
  - Serialized per User: concurrent turns of one user never interleave.

# Usage

	model := openai.NewModelFromClient(&client)

	orc, err := switchboard.New(
		switchboard.WithModel(model),
		switchboard.WithStore(redis.NewFromClient(rdb)),
	)
	if err != nil {
		log.Fatal(err)
	}

	reply, err := orc.Turn(ctx, "+254700000001", "hello")
	if err != nil {
		log.Fatal(err) // only persistence failures surface here
	}
	fmt.Println(reply.Message)
*/
package switchboard

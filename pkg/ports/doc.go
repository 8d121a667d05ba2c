/*
Package ports defines the driven ports (interfaces) of the switchboard orchestrator.

These interfaces decouple the agent graph from external collaborators, allowing
the orchestrator to work with various decision models, storage backends and
search providers.

# Key Interfaces

  - DecisionModel: Turns a prompt into a structured handoff decision.
  - StateStore: Persists and loads conversation State keyed by user.
  - Hydrator: Supplies the read-only domain Snapshot before a turn.
  - Searcher: Answers web search requests for the search agent.
  - DistributedLocker: Provides distributed locking for concurrent turns of one user.
*/
package ports

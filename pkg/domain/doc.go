/*
Package domain contains the core data model of the switchboard orchestrator.

It defines the per-user conversation State carried through the agent graph,
the Handoff tagged union produced by decision models, the append-only
NodeRecord audit trail and the error taxonomy. This package is kept pure and
free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - State: the serializable record for one user (conversation, node history, attempt counters).
  - Handoff: a validated instruction naming a target agent plus its typed parameters.
  - Decision: the raw, not yet validated output of a decision model.
  - NodeRecord: one audit entry per agent node invocation.
  - Snapshot: read-only domain data (goals, habits, milestones) hydrated before a turn.
*/
package domain

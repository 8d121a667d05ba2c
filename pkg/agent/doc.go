/*
Package agent defines the AgentNode contract and the concrete agents of the
switchboard graph.

A Node reads the current State and returns a Delta. It never writes to the
State directly: the runtime engine is the single writer, which keeps every
attempt counter and audit entry owned by exactly one node.

# Agents

  - Router: the entry agent. Greets, gathers context and hands off.
  - Tutor: teaches a subject at a grade, optionally asking for a web search.
  - Search: runs a web search and hands control back to the tutor.

Decision-backed agents recover from every model failure locally: the error is
written into the Delta and the node reports itself as failed, so a single
malformed response never aborts a turn.
*/
package agent

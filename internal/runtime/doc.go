// Package runtime drives one turn through a declared agent graph.
//
// The Engine is the single writer of State during a turn: agents return
// deltas, the engine merges them, appends exactly one audit entry per
// invocation, evaluates the conditional edges of the node that just ran and
// enforces the attempt and loop ceilings.
package runtime

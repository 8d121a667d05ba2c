package dsl

import (
	"slices"

	"github.com/aretw0/switchboard/pkg/agent"
	"github.com/aretw0/switchboard/pkg/domain"
)

// NodeSpec is the routing declaration of one graph node.
type NodeSpec struct {
	Name string
	// Agent is nil for sinks.
	Agent agent.Node
	// Successors is the allow-list of handoff targets.
	Successors []string
	// Default is used when no pending handoff targets an allowed successor.
	Default string
	// OnError is used when the agent reports a failure. Defaults to the node itself.
	OnError string
	// Always, when set, is taken unconditionally after the agent runs.
	Always string
	// Sink marks a delivery target that ends the turn.
	Sink bool
}

// Allows reports whether target is in the allow-list.
func (n *NodeSpec) Allows(target string) bool {
	return slices.Contains(n.Successors, target)
}

// Graph is a declared agent topology.
type Graph struct {
	Entry string
	Nodes map[string]*NodeSpec
	// Order keeps declaration order for deterministic rendering.
	Order []string
}

// Node returns the declaration of name.
func (g *Graph) Node(name string) (*NodeSpec, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// Runnable reports whether name is a registered agent (not a sink, not END).
func (g *Graph) Runnable(name string) bool {
	n, ok := g.Nodes[name]
	return ok && !n.Sink && n.Agent != nil
}

// Targets lists every node name an edge of n may lead to, END included.
func (n *NodeSpec) Targets() []string {
	var out []string
	add := func(s string) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, s := range n.Successors {
		add(s)
	}
	add(n.Default)
	add(n.OnError)
	add(n.Always)
	if !n.Sink && n.Always == "" {
		add(domain.End)
	}
	return out
}

package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/switchboard/pkg/agent"
)

// Builder manages the graph construction.
type Builder struct {
	entry string
	nodes map[string]*NodeBuilder
	order []string
	errs  []error
}

// New creates a new graph builder whose turns start at entry.
func New(entry string) *Builder {
	return &Builder{
		entry: entry,
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add registers an agent node. Adding the same name twice is an error
// reported by Build.
func (b *Builder) Add(a agent.Node) *NodeBuilder {
	name := a.Name()
	if _, ok := b.nodes[name]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q declared twice", name))
	}
	nb := &NodeBuilder{spec: NodeSpec{Name: name, Agent: a}}
	b.nodes[name] = nb
	b.order = append(b.order, name)
	return nb
}

// Sink registers a delivery target that ends the turn.
func (b *Builder) Sink(name string) *Builder {
	if _, ok := b.nodes[name]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q declared twice", name))
	}
	b.nodes[name] = &NodeBuilder{spec: NodeSpec{Name: name, Sink: true}}
	b.order = append(b.order, name)
	return b
}

// Build returns the declared graph. Structural validation (broken links,
// reachability) is performed by the runtime when the graph is loaded.
func (b *Builder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.entry == "" {
		return nil, errors.New("graph has no entry node")
	}

	g := &Graph{
		Entry: b.entry,
		Nodes: make(map[string]*NodeSpec, len(b.nodes)),
		Order: append([]string(nil), b.order...),
	}
	for name, nb := range b.nodes {
		spec := nb.spec
		if !spec.Sink && spec.OnError == "" {
			spec.OnError = name
		}
		g.Nodes[name] = &spec
	}
	return g, nil
}

// NodeBuilder provides a fluent API for configuring a node's edges.
type NodeBuilder struct {
	spec NodeSpec
}

// To appends targets to the successor allow-list.
func (n *NodeBuilder) To(targets ...string) *NodeBuilder {
	n.spec.Successors = append(n.spec.Successors, targets...)
	return n
}

// Default sets the successor used when a decision is empty of allowed targets.
func (n *NodeBuilder) Default(target string) *NodeBuilder {
	n.spec.Default = target
	return n
}

// Error sets the successor used when the agent fails.
func (n *NodeBuilder) Error(target string) *NodeBuilder {
	n.spec.OnError = target
	return n
}

// Always adds an unconditional transition to target.
func (n *NodeBuilder) Always(target string) *NodeBuilder {
	n.spec.Always = target
	return n
}

// Package scripted provides a deterministic DecisionModel that replays
// pre-recorded decisions per node. It backs the "scripted" model provider
// (offline demos) and the test suites of the orchestrator.
package scripted

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/ports"
)

// Step is one scripted model response.
type Step struct {
	Decision domain.Decision
	Err      error
	// Hang blocks until the call context is done, simulating a timeout.
	Hang bool
}

// Model replays steps per node. When a node's script is exhausted the last
// step repeats; nodes without a script use the fallback.
type Model struct {
	mu       sync.Mutex
	scripts  map[string][]Step
	cursor   map[string]int
	fallback func(ports.Prompt) (domain.Decision, error)
	calls    []ports.Prompt
}

// New creates an empty scripted model whose fallback echoes the last user message.
func New() *Model {
	return &Model{
		scripts:  make(map[string][]Step),
		cursor:   make(map[string]int),
		fallback: Echo,
	}
}

// On appends steps to the script of node.
func (m *Model) On(node string, steps ...Step) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[node] = append(m.scripts[node], steps...)
	return m
}

// Fallback replaces the response used for nodes without a script.
func (m *Model) Fallback(fn func(ports.Prompt) (domain.Decision, error)) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = fn
	return m
}

// Calls returns the prompts received so far.
func (m *Model) Calls() []ports.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.Prompt(nil), m.calls...)
}

// Decide implements ports.DecisionModel.
func (m *Model) Decide(ctx context.Context, prompt ports.Prompt, _ ports.Shape) (domain.Decision, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	steps := m.scripts[prompt.Node]
	if len(steps) == 0 {
		fallback := m.fallback
		m.mu.Unlock()
		if fallback == nil {
			return domain.Decision{}, fmt.Errorf("no script for node %q", prompt.Node)
		}
		return fallback(prompt)
	}
	i := m.cursor[prompt.Node]
	if i >= len(steps) {
		i = len(steps) - 1
	} else {
		m.cursor[prompt.Node] = i + 1
	}
	step := steps[i]
	m.mu.Unlock()

	if step.Hang {
		<-ctx.Done()
		return domain.Decision{}, ctx.Err()
	}
	return step.Decision, step.Err
}

// Echo answers every prompt by repeating the last user message.
func Echo(prompt ports.Prompt) (domain.Decision, error) {
	text := "Hello!"
	for i := len(prompt.Messages) - 1; i >= 0; i-- {
		if prompt.Messages[i].Role == domain.RoleUser {
			text = "You said: " + prompt.Messages[i].Content
			break
		}
	}
	return domain.Decision{Handoffs: []domain.RawHandoff{
		Entry(domain.RespondToUser, domain.RespondParameters{MessageToStudent: text, AgentAfterResponse: prompt.Node}),
	}}, nil
}

// Entry builds a raw handoff entry from any parameter value.
func Entry(agent string, params any) domain.RawHandoff {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return domain.RawHandoff{AgentName: agent, MessageToAgent: "handoff to " + agent, Parameters: raw}
}

// Decide returns a step answering with the given entries.
func Decide(entries ...domain.RawHandoff) Step {
	if entries == nil {
		entries = []domain.RawHandoff{}
	}
	return Step{Decision: domain.Decision{Handoffs: entries}}
}

// Respond returns a step handing off to respond_to_user.
func Respond(msg, after string) Step {
	return Decide(Entry(domain.RespondToUser, domain.RespondParameters{MessageToStudent: msg, AgentAfterResponse: after}))
}

// Tutor returns a step handing off to the tutor agent.
func Tutor(subject string, grade int) Step {
	return Decide(Entry(domain.TutorAgent, domain.TutorParameters{Subject: subject, Grade: grade}))
}

// Search returns a step handing off to the search agent.
func Search(query string) Step {
	return Decide(Entry(domain.SearchAgent, domain.SearchParameters{Query: query}))
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Timeout returns a step that blocks until the call deadline.
func Timeout() Step {
	return Step{Hang: true}
}

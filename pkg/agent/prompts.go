package agent

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/switchboard/pkg/domain"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// PromptData is the template context of every agent prompt.
type PromptData struct {
	UserID         string
	Message        string
	Instruction    string
	Snapshot       domain.Snapshot
	Tutoring       *domain.TutorParameters
	SearchResults  []domain.SearchResult
	SearchAttempts int
}

type promptSpec struct {
	Description string `yaml:"description"`
	System      string `yaml:"system"`
}

// Prompts is a parsed set of system prompt templates keyed by node name.
type Prompts struct {
	templates map[string]*template.Template
}

// ParsePrompts parses a YAML document mapping node names to prompt specs.
func ParsePrompts(data []byte) (*Prompts, error) {
	var specs map[string]promptSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	p := &Prompts{templates: make(map[string]*template.Template, len(specs))}
	for node, spec := range specs {
		if strings.TrimSpace(spec.System) == "" {
			return nil, fmt.Errorf("prompt %q has an empty system template", node)
		}
		tmpl, err := template.New(node).Option("missingkey=error").Parse(spec.System)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", node, err)
		}
		p.templates[node] = tmpl
	}
	return p, nil
}

// DefaultPrompts returns the embedded prompt set.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPromptsYAML)
	if err != nil {
		panic(err)
	}
	return p
}

// Has reports whether a prompt exists for node.
func (p *Prompts) Has(node string) bool {
	_, ok := p.templates[node]
	return ok
}

// Render executes the prompt template of node.
func (p *Prompts) Render(node string, data PromptData) (string, error) {
	tmpl, ok := p.templates[node]
	if !ok {
		return "", fmt.Errorf("no prompt defined for %q", node)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", node, err)
	}
	return b.String(), nil
}

package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
)

// ValidateGraph checks for broken links, misdeclared sinks and unreachable
// nodes, crawling from the entry node.
func ValidateGraph(g *dsl.Graph) error {
	if g == nil {
		return fmt.Errorf("graph is nil")
	}

	var errors []string

	entry, ok := g.Node(g.Entry)
	if !ok {
		return fmt.Errorf("entry node '%s' not found", g.Entry)
	}
	if entry.Sink {
		return fmt.Errorf("entry node '%s' is a sink", g.Entry)
	}

	for _, name := range g.Order {
		spec := g.Nodes[name]
		if spec.Sink {
			if spec.Agent != nil || len(spec.Successors) > 0 || spec.Always != "" {
				errors = append(errors, fmt.Sprintf("Sink '%s' must not declare an agent or edges", name))
			}
			continue
		}
		if spec.Agent == nil {
			errors = append(errors, fmt.Sprintf("Node '%s' has no agent", name))
		}
		if spec.Always != "" && len(spec.Successors) > 0 {
			errors = append(errors, fmt.Sprintf("Node '%s' mixes an unconditional edge with successors", name))
		}
		if len(spec.Successors) > 0 && spec.Default == "" {
			errors = append(errors, fmt.Sprintf("Node '%s' has successors but no default", name))
		}
	}

	// Crawler
	visited := make(map[string]bool)
	queue := []string{g.Entry}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		spec, ok := g.Node(currentID)
		if !ok {
			errors = append(errors, fmt.Sprintf("Missing node: '%s'", currentID))
			continue
		}

		for _, target := range spec.Targets() {
			if target == domain.End {
				continue
			}
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}

	for _, name := range g.Order {
		if !visited[name] {
			errors = append(errors, fmt.Sprintf("Unreachable node: '%s'", name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}

package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/dsl"
)

// GraphOverlay contains session data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromState marks the nodes run in the last turn of st.
func OverlayFromState(st *domain.State) *GraphOverlay {
	if st == nil {
		return nil
	}
	o := &GraphOverlay{CurrentNode: st.CurrentStep}
	last, ok := st.LastRecord()
	if !ok {
		return o
	}
	for _, rec := range st.NodeHistory {
		if rec.TurnID == last.TurnID {
			o.VisitedNodes = append(o.VisitedNodes, rec.Node)
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of g.
// Shapes:
// - Entry: ((Circle))
// - Sink (delivery to the user): [/Parallelogram/]
// - END: (((Double circle)))
// - Agent: [Rectangle]
// Edges: handoff targets are solid, the default edge is labelled, the error
// edge is dotted, an unconditional edge is thick.
func GenerateMermaid(g *dsl.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	usesEnd := false
	for _, name := range g.Order {
		spec, ok := g.Node(name)
		if !ok {
			continue
		}
		safeID := sanitizeMermaidID(name)

		opener, closer := "[", "]"
		switch {
		case name == g.Entry:
			opener, closer = "((", "))"
		case spec.Sink:
			opener, closer = "[/", "/]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, name, closer)

		if spec.Always != "" {
			fmt.Fprintf(&sb, "    %s ==> %s\n", safeID, sanitizeMermaidID(spec.Always))
			usesEnd = usesEnd || spec.Always == domain.End
		}
		for _, to := range spec.Successors {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(to))
			usesEnd = usesEnd || to == domain.End
		}
		if spec.Default != "" {
			fmt.Fprintf(&sb, "    %s -- \"default\" --> %s\n", safeID, sanitizeMermaidID(spec.Default))
			usesEnd = usesEnd || spec.Default == domain.End
		}
		if spec.OnError != "" && spec.OnError != name {
			fmt.Fprintf(&sb, "    %s -. \"error\" .-> %s\n", safeID, sanitizeMermaidID(spec.OnError))
		}
	}
	if usesEnd {
		fmt.Fprintf(&sb, "    %s(((\"%s\")))\n", sanitizeMermaidID(domain.End), domain.End)
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text for contrast on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}

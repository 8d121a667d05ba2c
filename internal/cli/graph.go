package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/switchboard/internal/presentation/graph"
	switchboardhttp "github.com/aretw0/switchboard/pkg/adapters/http"
)

// PrintGraph writes the agent graph as a mermaid diagram or, with format
// "json", as the description served by GET /v1/graph.
func PrintGraph(app *App, format string, w io.Writer) error {
	g := app.Orchestrator.Graph()
	switch format {
	case "", "mermaid":
		_, err := fmt.Fprint(w, graph.GenerateMermaid(g, nil))
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(switchboardhttp.DescribeGraph(g))
	default:
		return fmt.Errorf("unknown graph format %q (want mermaid or json)", format)
	}
}

// Validate reports the graph an App was built with. Build has already
// rejected invalid configuration and graphs by the time this runs.
func Validate(app *App, w io.Writer) {
	g := app.Orchestrator.Graph()
	fmt.Fprintf(w, "Config is valid (model=%s, store=%s, search=%s).\n",
		app.Config.Model.Provider, app.Config.Store.Kind, app.Config.Search.Provider)
	fmt.Fprintf(w, "Graph is valid: %d nodes, entry %q.\n", len(g.Nodes), g.Entry)
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aretw0/switchboard/internal/presentation/graph"
	"github.com/aretw0/switchboard/pkg/domain"
)

// ListSessions prints the users with stored state, sorted.
func ListSessions(ctx context.Context, app *App, w io.Writer) error {
	users, err := app.Orchestrator.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(users) == 0 {
		fmt.Fprintln(w, "No active sessions found.")
		return nil
	}
	sort.Strings(users)
	fmt.Fprintln(w, "Active Sessions:")
	for _, u := range users {
		fmt.Fprintln(w, "- "+u)
	}
	return nil
}

// InspectSession prints the stored state of userID as indented JSON. With
// diagram set it prints the agent graph with the last turn highlighted.
func InspectSession(ctx context.Context, app *App, userID string, diagram bool, w io.Writer) error {
	st, err := app.Orchestrator.Inspect(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading session '%s': %w", userID, err)
	}
	if diagram {
		fmt.Fprint(w, graph.GenerateMermaid(app.Orchestrator.Graph(), graph.OverlayFromState(st)))
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSessions deletes the state of every user in userIDs. Unknown users
// are reported and make the call fail after the others are removed.
func RemoveSessions(ctx context.Context, app *App, userIDs []string, w io.Writer) error {
	var errs []error
	for _, id := range userIDs {
		if _, err := app.Orchestrator.Inspect(ctx, id); errors.Is(err, domain.ErrSessionNotFound) {
			fmt.Fprintf(w, "No session for '%s'\n", id)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		if err := app.Orchestrator.Reset(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed session '%s'\n", id)
	}
	return errors.Join(errs...)
}

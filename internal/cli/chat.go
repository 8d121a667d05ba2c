package cli

import (
	"context"
	"io"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/presentation/tui"
	"github.com/aretw0/switchboard/pkg/runner"
)

// ChatOptions configures RunChat.
type ChatOptions struct {
	UserID string
	// JSON switches to line-delimited JSON input and output.
	JSON bool
	// ShowPath prints the agents visited after each reply.
	ShowPath bool
	In       io.Reader
	Out      io.Writer
}

// RunChat runs an interactive conversation for one user until EOF, /quit or
// ctx is cancelled.
func RunChat(ctx context.Context, app *App, opts ChatOptions) error {
	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(opts.In, opts.Out)
	} else {
		if tui.IsTerminal(opts.Out) {
			tui.PrintBanner(opts.Out, switchboard.Version)
		}
		handler = runner.NewTextHandler(opts.In, opts.Out,
			runner.WithTextHandlerRenderer(runner.ContentRenderer(tui.RendererFor(opts.Out))),
			runner.WithTextHandlerPath(opts.ShowPath),
		)
		if st, err := app.Orchestrator.Inspect(ctx, opts.UserID); err == nil {
			printSystemMessage(opts.Out, "Resuming session of '%s' (%d turns).", opts.UserID, st.Turns)
		}
	}

	r := runner.New(app.Orchestrator, opts.UserID,
		runner.WithInputHandler(handler),
		runner.WithLogger(app.Logger),
	)
	return r.Run(ctx)
}

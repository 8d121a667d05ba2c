/*
Package runner implements the interactive chat loop on top of the Orchestrator.

It reads user messages through a pluggable IOHandler, runs one turn per
message and presents the reply. Handlers exist for terminals (TextHandler)
and for structured JSON-Lines pipes (JSONHandler).

# Usage

	r := runner.New(orc, "+254700000001",
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}

Lines starting with a slash are commands: /reset forgets the session and
/quit ends the loop.
*/
package runner

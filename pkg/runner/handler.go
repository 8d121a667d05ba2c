package runner

import (
	"context"

	"github.com/aretw0/switchboard"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Input reads the next user message. io.EOF ends the conversation.
	Input(ctx context.Context) (string, error)

	// Output presents the reply of one turn.
	Output(ctx context.Context, reply *switchboard.Reply) error

	// SystemOutput presents a meta-message (errors, command results).
	SystemOutput(ctx context.Context, msg string) error
}

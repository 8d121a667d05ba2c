package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/switchboard"
	"github.com/aretw0/switchboard/internal/logging"
)

// Orchestrator is the part of *switchboard.Orchestrator the runner drives.
type Orchestrator interface {
	Turn(ctx context.Context, userID, message string) (*switchboard.Reply, error)
	Reset(ctx context.Context, userID string) error
}

// Chat commands.
const (
	CommandReset = "/reset"
	CommandQuit  = "/quit"
	CommandExit  = "/exit"
)

// Runner is the chat loop of one user.
type Runner struct {
	orc     Orchestrator
	userID  string
	Handler IOHandler
	Logger  *slog.Logger
	// MaxInputSize bounds each message in bytes.
	MaxInputSize int
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithMaxInputSize overrides the message size limit.
func WithMaxInputSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.MaxInputSize = n
		}
	}
}

// New creates a chat runner for userID. The default handler is a
// TextHandler on stdin/stdout.
func New(orc Orchestrator, userID string, opts ...Option) *Runner {
	r := &Runner{
		orc:          orc,
		userID:       userID,
		Logger:       logging.NewNop(),
		MaxInputSize: MaxInputSize(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run reads messages until EOF, /quit or ctx cancellation. Turn failures
// are reported to the user and the loop continues; only handler I/O errors
// end it with an error.
func (r *Runner) Run(ctx context.Context) error {
	log := r.Logger.With("user_id", r.userID)
	for {
		raw, err := r.Handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		msg, err := SanitizeInputLimit(raw, r.MaxInputSize)
		if err != nil {
			log.Warn("input rejected", "err", err, "size", len(raw))
			if err := r.Handler.SystemOutput(ctx, fmt.Sprintf("Error: %v. Please try again.", err)); err != nil {
				return err
			}
			continue
		}
		if msg == "" {
			continue
		}

		if strings.HasPrefix(msg, "/") {
			quit, err := r.command(ctx, msg)
			if err != nil || quit {
				return err
			}
			continue
		}

		reply, err := r.orc.Turn(ctx, r.userID, msg)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("turn failed", "err", err)
			if reply == nil {
				if err := r.Handler.SystemOutput(ctx, "Turn failed: "+err.Error()); err != nil {
					return err
				}
				continue
			}
		}
		if err := r.Handler.Output(ctx, reply); err != nil {
			return err
		}
	}
}

func (r *Runner) command(ctx context.Context, cmd string) (bool, error) {
	switch strings.Fields(cmd)[0] {
	case CommandQuit, CommandExit:
		return true, nil
	case CommandReset:
		if err := r.orc.Reset(ctx, r.userID); err != nil {
			return false, r.Handler.SystemOutput(ctx, "Reset failed: "+err.Error())
		}
		return false, r.Handler.SystemOutput(ctx, "Session reset.")
	default:
		return false, r.Handler.SystemOutput(ctx, fmt.Sprintf("Unknown command %q. Try %s or %s.", cmd, CommandReset, CommandQuit))
	}
}

package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a user key cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrLockTimeout is returned when a keyed lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// DecisionError reports a decision model call that failed, timed out or
// returned output that does not match the expected shape.
type DecisionError struct {
	Node    string
	Timeout bool
	Err     error
}

func (e *DecisionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("decision error at %s: timed out: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("decision error at %s: %v", e.Node, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// ShapeMismatchError reports handoff parameters that do not match the shape
// declared for their agent name.
type ShapeMismatchError struct {
	Agent  string
	Reason string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %q: %s", e.Agent, e.Reason)
}

// RoutingRejection reports a requested successor outside the allow-list.
type RoutingRejection struct {
	From     string
	To       string
	Fallback string
}

func (e *RoutingRejection) Error() string {
	return fmt.Sprintf("routing from %s to %s rejected, falling back to %s", e.From, e.To, e.Fallback)
}

// BreakerReason identifies which ceiling tripped.
type BreakerReason string

const (
	BreakerAttempts BreakerReason = "attempt_ceiling"
	BreakerLoop     BreakerReason = "loop_ceiling"
)

// BreakerTripped reports a turn forced to terminate by a ceiling.
type BreakerTripped struct {
	Node   string
	Reason BreakerReason
	Limit  int
}

func (e *BreakerTripped) Error() string {
	return fmt.Sprintf("breaker tripped at %s: %s of %d reached", e.Node, e.Reason, e.Limit)
}

// PersistenceError reports a load, save or hydration failure. It is the only
// error class surfaced to the orchestrator's caller.
type PersistenceError struct {
	Op     string
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s for %q: %v", e.Op, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

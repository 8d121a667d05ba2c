package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// StateStore defines the interface for persisting conversation state.
// Semantics are keyed, last-write-wins.
type StateStore interface {
	// Save persists the state for a given user key.
	Save(ctx context.Context, userID string, state *domain.State) error

	// Load retrieves the state for a given user key.
	// Returns domain.ErrSessionNotFound if the user has no state yet.
	Load(ctx context.Context, userID string) (*domain.State, error)

	// Delete removes the state for a given user key.
	Delete(ctx context.Context, userID string) error

	// List returns all stored user keys.
	List(ctx context.Context) ([]string, error)
}

package ports

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
)

// Hydrator loads the read-only domain snapshot for a user before a turn.
// The orchestrator never calls it mid-turn.
type Hydrator interface {
	Hydrate(ctx context.Context, userID string) (domain.Snapshot, error)
}

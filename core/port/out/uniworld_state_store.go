package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
)

// StateStore holds pending OAuth state tokens. The callback arrives
// unauthenticated, so the state carries both the provider it was
// issued for and the user who started the flow. Consume is atomic:
// a state validates exactly once, then is gone.
type StateStore interface {
	// Save binds a state token to the flow that issued it.
	Save(ctx context.Context, state string, provider domain.Provider, userID uuid.UUID, ttl time.Duration) error

	// Consume validates and deletes a state in one step. Unknown or
	// reused states fail with ErrStateNotFound.
	Consume(ctx context.Context, state string) (domain.Provider, uuid.UUID, error)
}

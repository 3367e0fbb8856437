package in

import (
	"context"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
)

// OAuthUseCase is the credential lifecycle surface exposed to handlers.
type OAuthUseCase interface {
	// BeginConnect issues a consent URL plus the single-use state
	// backing it. The state carries the user so the unauthenticated
	// callback can be attributed.
	BeginConnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) (authURL, state string, err error)

	// CompleteConnect validates state, exchanges the code, and stores
	// the resulting credential for the user the state was issued to.
	CompleteConnect(ctx context.Context, state, code string) (domain.Provider, error)

	// TokenStatuses reports the connection state for every provider.
	TokenStatuses(ctx context.Context, userID uuid.UUID) ([]domain.TokenStatus, error)

	// ForceRefresh refreshes the access token now regardless of expiry.
	ForceRefresh(ctx context.Context, userID uuid.UUID, provider domain.Provider) (domain.TokenStatus, error)

	// ValidAccessToken returns an access token good for immediate
	// use, refreshing the stored one first if it is expired.
	ValidAccessToken(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error)

	// RefreshNow re-runs the refresh unconditionally and returns the
	// new access token. Used for the one retry after a provider 401.
	RefreshNow(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error)

	// Disconnect revokes the token upstream and deletes the credential.
	Disconnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) error
}

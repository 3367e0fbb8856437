package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
)

// CredentialEntity is the persistence shape of a credential row.
// Token columns hold ciphertext; the adapter seals and opens them.
type CredentialEntity struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenExpiry  time.Time `db:"token_expiry"`
	Email        string    `db:"email"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// CredentialRepository stores one credential per (user, provider).
type CredentialRepository interface {
	// Upsert creates the credential or replaces the existing row for
	// the same (user, provider) pair in place.
	Upsert(ctx context.Context, cred *domain.Credential) error

	// Find returns the credential or ErrNotFound.
	Find(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error)

	// FindAll returns every credential the user holds.
	FindAll(ctx context.Context, userID uuid.UUID) ([]*domain.Credential, error)

	// UpdateTokens persists a refresh result. An empty refreshToken
	// keeps the stored one.
	UpdateTokens(ctx context.Context, userID uuid.UUID, provider domain.Provider, accessToken, refreshToken string, expiry time.Time) error

	// Delete removes the credential. Missing rows are not an error.
	Delete(ctx context.Context, userID uuid.UUID, provider domain.Provider) error
}

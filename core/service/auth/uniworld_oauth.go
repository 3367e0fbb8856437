package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/in"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/logger"
)

// OAuthService owns the credential lifecycle: consent, code exchange,
// lazy refresh, and disconnect.
type OAuthService struct {
	providers    out.ProviderRegistry
	credentials  out.CredentialRepository
	states       out.StateStore
	stateTTL     time.Duration
	expiryLeeway time.Duration
	refreshLocks *keyMutex
	log          *logger.Logger
}

var _ in.OAuthUseCase = (*OAuthService)(nil)

func NewOAuthService(
	providers out.ProviderRegistry,
	credentials out.CredentialRepository,
	states out.StateStore,
	stateTTL time.Duration,
	expiryLeeway time.Duration,
	log *logger.Logger,
) *OAuthService {
	if stateTTL == 0 {
		stateTTL = 10 * time.Minute
	}
	if expiryLeeway == 0 {
		expiryLeeway = 60 * time.Second
	}
	return &OAuthService{
		providers:    providers,
		credentials:  credentials,
		states:       states,
		stateTTL:     stateTTL,
		expiryLeeway: expiryLeeway,
		refreshLocks: newKeyMutex(),
		log:          log,
	}
}

// ===========================================================================
// Connect flow
// ===========================================================================

// BeginConnect issues the consent URL and registers its state token.
func (s *OAuthService) BeginConnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, string, error) {
	p, err := s.providers.Get(provider)
	if err != nil {
		return "", "", err
	}

	state, err := generateState()
	if err != nil {
		return "", "", apperr.Internal("generate oauth state", err)
	}

	if err := s.states.Save(ctx, state, provider, userID, s.stateTTL); err != nil {
		return "", "", apperr.Internal("save oauth state", err)
	}

	return p.AuthURL(state), state, nil
}

// CompleteConnect validates the state, exchanges the code, and stores
// the credential. The state decides which provider and user the
// callback belongs to; state validation failure means the code is
// never exchanged.
func (s *OAuthService) CompleteConnect(ctx context.Context, state, code string) (domain.Provider, error) {
	provider, userID, err := s.states.Consume(ctx, state)
	if err != nil {
		return "", apperr.InvalidState("oauth state is invalid or already used")
	}

	p, err := s.providers.Get(provider)
	if err != nil {
		return "", err
	}

	token, email, err := p.Exchange(ctx, code)
	if err != nil {
		s.log.WithProvider(provider.String()).WithError(err).Error("authorization code exchange failed")
		if out.IsRedirectMismatch(err) {
			return "", apperr.RedirectMismatch(provider.String(), err)
		}
		return "", apperr.ExchangeFailed(provider.String(), err)
	}

	cred := &domain.Credential{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		Email:        email,
	}
	if err := s.credentials.Upsert(ctx, cred); err != nil {
		return "", apperr.Internal("store credential", err)
	}

	s.log.WithProvider(provider.String()).
		WithField("user_id", userID.String()).
		Info("oauth account connected")

	return provider, nil
}

// ===========================================================================
// Token access
// ===========================================================================

// TokenStatuses reports all providers, including ones never connected.
func (s *OAuthService) TokenStatuses(ctx context.Context, userID uuid.UUID) ([]domain.TokenStatus, error) {
	creds, err := s.credentials.FindAll(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load credentials", err)
	}

	byProvider := make(map[domain.Provider]*domain.Credential, len(creds))
	for _, c := range creds {
		byProvider[c.Provider] = c
	}

	statuses := make([]domain.TokenStatus, 0, 2)
	for _, p := range []domain.Provider{domain.ProviderGmail, domain.ProviderOutlook} {
		if c, ok := byProvider[p]; ok {
			statuses = append(statuses, c.Status(s.expiryLeeway))
		} else {
			statuses = append(statuses, domain.TokenStatus{Provider: p, Connected: false, IsExpired: true})
		}
	}
	return statuses, nil
}

// ValidAccessToken returns an access token safe to use right now,
// refreshing lazily when the stored one is expired or near expiry.
func (s *OAuthService) ValidAccessToken(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error) {
	cred, err := s.findCredential(ctx, userID, provider)
	if err != nil {
		return "", err
	}

	if !cred.Expired(s.expiryLeeway) {
		return cred.AccessToken, nil
	}

	return s.refreshLocked(ctx, userID, provider)
}

// RefreshNow refreshes unconditionally. Call after a provider rejects
// a token the expiry said was fine.
func (s *OAuthService) RefreshNow(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error) {
	unlock := s.refreshLocks.Lock(refreshKey(userID, provider))
	defer unlock()

	cred, err := s.findCredential(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	return s.refresh(ctx, cred)
}

// ForceRefresh is RefreshNow plus a status projection for the API.
func (s *OAuthService) ForceRefresh(ctx context.Context, userID uuid.UUID, provider domain.Provider) (domain.TokenStatus, error) {
	if _, err := s.RefreshNow(ctx, userID, provider); err != nil {
		return domain.TokenStatus{}, err
	}
	cred, err := s.findCredential(ctx, userID, provider)
	if err != nil {
		return domain.TokenStatus{}, err
	}
	return cred.Status(s.expiryLeeway), nil
}

// refreshLocked serializes refreshes per (user, provider) and rechecks
// expiry after acquiring the lock, so a send that queued behind a
// finished refresh reuses its result instead of refreshing again.
func (s *OAuthService) refreshLocked(ctx context.Context, userID uuid.UUID, provider domain.Provider) (string, error) {
	unlock := s.refreshLocks.Lock(refreshKey(userID, provider))
	defer unlock()

	cred, err := s.findCredential(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if !cred.Expired(s.expiryLeeway) {
		return cred.AccessToken, nil
	}
	return s.refresh(ctx, cred)
}

func (s *OAuthService) refresh(ctx context.Context, cred *domain.Credential) (string, error) {
	if !cred.CanRefresh() {
		return "", apperr.ReconnectRequired(cred.Provider.String(), errors.New("no refresh token stored"))
	}

	p, err := s.providers.Get(cred.Provider)
	if err != nil {
		return "", err
	}

	start := time.Now()
	token, err := p.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if out.IsInvalidGrant(err) {
			s.log.WithProvider(cred.Provider.String()).
				WithField("user_id", cred.UserID.String()).
				Warn("refresh token revoked upstream, reconnect required")
			return "", apperr.ReconnectRequired(cred.Provider.String(), err)
		}
		return "", apperr.RefreshFailed(cred.Provider.String(), err)
	}

	// An empty rotated refresh token keeps the stored one.
	if err := s.credentials.UpdateTokens(ctx, cred.UserID, cred.Provider,
		token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		return "", apperr.Internal("persist refreshed tokens", err)
	}

	s.log.WithProvider(cred.Provider.String()).
		WithField("user_id", cred.UserID.String()).
		WithDuration(time.Since(start)).
		Info("access token refreshed")

	return token.AccessToken, nil
}

// ===========================================================================
// Disconnect
// ===========================================================================

// Disconnect revokes upstream where the provider supports it, then
// deletes the stored credential. Revocation failure does not block
// deletion; the local copy must go regardless.
func (s *OAuthService) Disconnect(ctx context.Context, userID uuid.UUID, provider domain.Provider) error {
	cred, err := s.findCredential(ctx, userID, provider)
	if err != nil {
		return err
	}

	p, err := s.providers.Get(provider)
	if err != nil {
		return err
	}

	revokeTarget := cred.RefreshToken
	if revokeTarget == "" {
		revokeTarget = cred.AccessToken
	}
	if revokeTarget != "" {
		if err := p.Revoke(ctx, revokeTarget); err != nil {
			s.log.WithProvider(provider.String()).WithError(err).
				Warn("upstream token revocation failed, deleting local credential anyway")
		}
	}

	if err := s.credentials.Delete(ctx, userID, provider); err != nil {
		return apperr.Internal("delete credential", err)
	}

	s.log.WithProvider(provider.String()).
		WithField("user_id", userID.String()).
		Info("oauth account disconnected")
	return nil
}

// ===========================================================================
// Helpers
// ===========================================================================

func (s *OAuthService) findCredential(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*domain.Credential, error) {
	cred, err := s.credentials.Find(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotConnected(provider.String())
		}
		return nil, apperr.Internal("load credential", err)
	}
	return cred, nil
}

func refreshKey(userID uuid.UUID, provider domain.Provider) string {
	return fmt.Sprintf("%s:%s", userID, provider)
}

// generateState produces 32 bytes of CSPRNG-backed hex.
func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

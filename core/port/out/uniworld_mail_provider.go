package out

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uniworld_server/core/domain"
)

// Token is the provider-neutral OAuth token pair returned by exchange
// and refresh. Expiry is absolute; providers that answer with a
// relative expires_in convert before returning.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// MailProvider abstracts one OAuth mail backend. Gmail and Outlook
// both satisfy it; the send pipeline never branches on which.
type MailProvider interface {
	// Name returns the provider identifier.
	Name() domain.Provider

	// AuthURL builds the consent URL carrying the given state.
	AuthURL(state string) string

	// Exchange trades an authorization code for tokens plus the
	// connected account's email address.
	Exchange(ctx context.Context, code string) (*Token, string, error)

	// Refresh obtains a fresh access token. The returned token's
	// RefreshToken is empty when the provider did not rotate it.
	Refresh(ctx context.Context, refreshToken string) (*Token, error)

	// Revoke invalidates a token at the provider, best effort.
	Revoke(ctx context.Context, token string) error

	// Send delivers one message and returns the provider message id.
	Send(ctx context.Context, accessToken string, msg *domain.OutboundMessage) (string, error)
}

// ProviderRegistry resolves the adapter for a provider name.
type ProviderRegistry interface {
	Get(provider domain.Provider) (MailProvider, error)
}

// ===========================================================================
// Provider error taxonomy
// ===========================================================================

type ProviderErrorCode string

const (
	ProviderErrAuth             ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired     ProviderErrorCode = "token_expired"
	ProviderErrInvalidGrant     ProviderErrorCode = "invalid_grant"
	ProviderErrRedirectMismatch ProviderErrorCode = "redirect_uri_mismatch"
	ProviderErrRateLimit        ProviderErrorCode = "rate_limit"
	ProviderErrNotFound         ProviderErrorCode = "not_found"
	ProviderErrNetwork          ProviderErrorCode = "network_error"
	ProviderErrServer           ProviderErrorCode = "server_error"
	ProviderErrBadRequest       ProviderErrorCode = "bad_request"
)

// ProviderError wraps a provider API failure with enough structure
// for the caller to decide between retry, refresh, and give up.
type ProviderError struct {
	Provider  domain.Provider
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider domain.Provider, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message, Err: err, Retryable: retryable}
}

// IsAuthError reports whether the failure means the access token was
// rejected, so one refresh-and-retry is worth attempting.
func IsAuthError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ProviderErrAuth || pe.Code == ProviderErrTokenExpired
	}
	return false
}

// IsInvalidGrant reports whether the refresh token itself is dead and
// the user must reconnect.
func IsInvalidGrant(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ProviderErrInvalidGrant
	}
	return false
}

// IsRedirectMismatch reports whether the provider rejected the
// registered redirect URI. That is an app registration bug, not a
// user problem, and has to reach operators as its own code.
func IsRedirectMismatch(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == ProviderErrRedirectMismatch
	}
	return false
}

// IsRetryable reports whether a later retry could succeed.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

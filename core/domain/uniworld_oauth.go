package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies a connected mail account type.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// ParseProvider validates a provider string from the API surface.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderGmail, ProviderOutlook:
		return Provider(s), true
	}
	return "", false
}

func (p Provider) String() string { return string(p) }

// Credential is a user's OAuth connection to one provider. A user holds
// at most one credential per provider; reconnecting overwrites in place.
type Credential struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Provider     Provider
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	Email        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token must be refreshed before
// use. A zero expiry means the expiry was never recorded, which we
// treat as expired rather than trusting an unknown lifetime.
func (c *Credential) Expired(leeway time.Duration) bool {
	if c.TokenExpiry.IsZero() {
		return true
	}
	return time.Now().Add(leeway).After(c.TokenExpiry)
}

// CanRefresh reports whether a refresh is even possible.
func (c *Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// TokenStatus is the client-facing view of one credential. Raw token
// material never leaves the server.
type TokenStatus struct {
	Provider       Provider   `json:"provider"`
	Connected      bool       `json:"connected"`
	Email          string     `json:"email,omitempty"`
	HasAccessToken bool       `json:"has_access_token"`
	HasRefresh     bool       `json:"has_refresh_token"`
	TokenExpiry    *time.Time `json:"token_expiry,omitempty"`
	IsExpired      bool       `json:"is_expired"`
}

// Status projects a credential into its client-facing view.
func (c *Credential) Status(leeway time.Duration) TokenStatus {
	st := TokenStatus{
		Provider:       c.Provider,
		Connected:      true,
		Email:          c.Email,
		HasAccessToken: c.AccessToken != "",
		HasRefresh:     c.RefreshToken != "",
		IsExpired:      c.Expired(leeway),
	}
	if !c.TokenExpiry.IsZero() {
		expiry := c.TokenExpiry
		st.TokenExpiry = &expiry
	}
	return st
}

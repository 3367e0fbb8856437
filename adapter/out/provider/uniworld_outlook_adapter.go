package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"uniworld_server/adapter/out/provider/outlook"
	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/httputil"
	"uniworld_server/pkg/logger"
)

// OutlookAdapter implements out.MailProvider on Microsoft Graph.
type OutlookAdapter struct {
	config *oauth2.Config
	graph  *outlook.Client
	cb     *gobreaker.CircuitBreaker
	log    *logger.Logger
}

// OutlookConfig holds Microsoft app registration settings.
type OutlookConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// GraphBaseURL overrides the Graph endpoint. Leave empty in
	// production.
	GraphBaseURL string
	// HTTPClient overrides the transport used for Graph calls.
	HTTPClient *http.Client
}

// NewOutlookAdapter creates an Outlook adapter.
func NewOutlookAdapter(cfg *OutlookConfig, log *logger.Logger) *OutlookAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			"https://graph.microsoft.com/Mail.Send",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		},
		Endpoint: microsoft.AzureADEndpoint("common"),
	}

	cbSettings := gobreaker.Settings{
		Name:        "graph-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]any{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httputil.NewClient(30 * time.Second)
	}

	return &OutlookAdapter{
		config: config,
		graph:  outlook.NewClient(httpClient, cfg.GraphBaseURL),
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		log:    log.WithProvider("outlook"),
	}
}

var _ out.MailProvider = (*OutlookAdapter)(nil)

func (a *OutlookAdapter) Name() domain.Provider { return domain.ProviderOutlook }

// ===========================================================================
// Authentication
// ===========================================================================

// AuthURL returns the consent URL. offline_access in the scope list is
// what makes Microsoft hand out a refresh token.
func (a *OutlookAdapter) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades the authorization code for tokens and resolves the
// connected account's address from the Graph profile.
func (a *OutlookAdapter) Exchange(ctx context.Context, code string) (*out.Token, string, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", a.wrapOAuthError(err, "authorization code exchange failed")
	}

	email, err := a.graph.ProfileEmail(ctx, token.AccessToken)
	if err != nil {
		a.log.WithError(err).Warn("could not resolve outlook profile email")
	}

	return convertToken(token), email, nil
}

// Refresh obtains a new access token from the stored refresh token.
// Microsoft rotates refresh tokens on every refresh, so the returned
// RefreshToken is usually populated and must replace the stored one.
func (a *OutlookAdapter) Refresh(ctx context.Context, refreshToken string) (*out.Token, error) {
	src := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, a.wrapOAuthError(err, "token refresh failed")
	}

	t := convertToken(newToken)
	if newToken.RefreshToken == refreshToken {
		t.RefreshToken = ""
	}
	return t, nil
}

// Revoke is a no-op. Microsoft has no self-service token revocation
// endpoint; invalidation happens when the user removes the app from
// their account. Deleting the local credential is all we can do.
func (a *OutlookAdapter) Revoke(ctx context.Context, token string) error {
	return nil
}

// ===========================================================================
// Sending
// ===========================================================================

// Send delivers one message via Graph sendMail. Graph does not return
// a message id, so the id is empty on success.
func (a *OutlookAdapter) Send(ctx context.Context, accessToken string, msg *domain.OutboundMessage) (string, error) {
	graphMsg := outlook.NewMessage(msg.To, msg.Subject, msg.Body, msg.IsHTML)

	cbErr := a.executeWithCircuitBreaker(func() error {
		return a.graph.SendMail(ctx, accessToken, graphMsg)
	})
	if cbErr != nil {
		return "", a.wrapError(cbErr, "send message")
	}
	return "", nil
}

// ===========================================================================
// Internal helpers
// ===========================================================================

func (a *OutlookAdapter) executeWithCircuitBreaker(fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *outlook.APIError
			if errors.As(err, &apiErr) {
				switch apiErr.StatusCode {
				case 500, 502, 503, 429:
					return nil, err
				default:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	return err
}

func (a *OutlookAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var apiErr *outlook.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrTokenExpired, "token expired", err, false)
		case 403:
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrAuth, "access denied", err, false)
		case 404:
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNotFound, "not found", err, false)
		case 429:
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrRateLimit, "too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrServer, "server error", err, true)
		}
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrBadRequest, defaultMsg, err, false)
	}

	return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNetwork, defaultMsg, err, true)
}

func (a *OutlookAdapter) wrapOAuthError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || strings.Contains(string(re.Body), "invalid_grant") {
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrInvalidGrant, "grant revoked or expired", err, false)
		}
		// Microsoft reports a redirect URI mismatch as error code
		// AADSTS50011 in the response body.
		if strings.Contains(string(re.Body), "AADSTS50011") {
			return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrRedirectMismatch, "redirect uri does not match app registration", err, false)
		}
		return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrAuth, defaultMsg, err, false)
	}

	return out.NewProviderError(domain.ProviderOutlook, out.ProviderErrNetwork, defaultMsg, err, true)
}

// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/httputil"
	"uniworld_server/pkg/logger"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// GmailAdapter implements out.MailProvider for Gmail.
type GmailAdapter struct {
	config      *oauth2.Config
	cb          *gobreaker.CircuitBreaker
	apiEndpoint string
	revokeURL   string
	httpClient  *http.Client
	log         *logger.Logger
}

// GmailConfig holds Gmail app registration settings.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// APIEndpoint overrides the Gmail API base URL. Leave empty in
	// production.
	APIEndpoint string
	// RevokeURL overrides the token revocation endpoint.
	RevokeURL string
}

// NewGmailAdapter creates a Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig, log *logger.Logger) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailSendScope,
			"https://www.googleapis.com/auth/userinfo.email",
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
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

	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = googleRevokeURL
	}

	return &GmailAdapter{
		config:      config,
		cb:          gobreaker.NewCircuitBreaker(cbSettings),
		apiEndpoint: cfg.APIEndpoint,
		revokeURL:   revokeURL,
		httpClient:  httputil.NewShortClient(),
		log:         log.WithProvider("gmail"),
	}
}

var _ out.MailProvider = (*GmailAdapter)(nil)

func (a *GmailAdapter) Name() domain.Provider { return domain.ProviderGmail }

// ===========================================================================
// Authentication
// ===========================================================================

// AuthURL returns the consent URL. Offline access plus forced approval
// makes Google reissue a refresh token even on reconnect.
func (a *GmailAdapter) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for tokens and resolves the
// connected account's address from the Gmail profile.
func (a *GmailAdapter) Exchange(ctx context.Context, code string) (*out.Token, string, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", a.wrapOAuthError(err, "authorization code exchange failed")
	}

	email, err := a.profileEmail(ctx, token)
	if err != nil {
		a.log.WithError(err).Warn("could not resolve gmail profile email")
	}

	return convertToken(token), email, nil
}

// Refresh obtains a new access token from the stored refresh token.
// The returned RefreshToken is empty unless Google rotated it.
func (a *GmailAdapter) Refresh(ctx context.Context, refreshToken string) (*out.Token, error) {
	src := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := src.Token()
	if err != nil {
		return nil, a.wrapOAuthError(err, "token refresh failed")
	}

	t := convertToken(newToken)
	if newToken.RefreshToken == refreshToken {
		// TokenSource echoes the input token; only a genuinely new
		// value counts as rotation.
		t.RefreshToken = ""
	}
	return t, nil
}

// Revoke invalidates the token at Google's revocation endpoint.
func (a *GmailAdapter) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return out.NewProviderError(domain.ProviderGmail, out.ProviderErrNetwork, "revocation request failed", err, true)
	}
	defer resp.Body.Close()

	// Google answers 400 for tokens that are already dead, which is
	// the outcome we wanted anyway.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer,
			fmt.Sprintf("revocation returned status %d", resp.StatusCode), nil, false)
	}
	return nil
}

// ===========================================================================
// Sending
// ===========================================================================

// Send delivers one message via the Gmail API and returns its id.
func (a *GmailAdapter) Send(ctx context.Context, accessToken string, msg *domain.OutboundMessage) (string, error) {
	svc, err := a.getService(ctx, accessToken)
	if err != nil {
		return "", a.wrapError(err, "create gmail service")
	}

	raw := buildRawMessage(msg)
	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}

	var sent *gmail.Message
	cbErr := a.executeWithCircuitBreaker(func() error {
		var apiErr error
		sent, apiErr = svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return "", a.wrapError(cbErr, "send message")
	}

	return sent.Id, nil
}

// ===========================================================================
// Internal helpers
// ===========================================================================

func (a *GmailAdapter) getService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if a.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(a.apiEndpoint))
	}
	return gmail.NewService(ctx, opts...)
}

func (a *GmailAdapter) profileEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	svc, err := a.getService(ctx, token.AccessToken)
	if err != nil {
		return "", err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return profile.EmailAddress, nil
}

// executeWithCircuitBreaker shields the Gmail API behind the breaker.
// Client errors must not trip it; only server-side failures count.
func (a *GmailAdapter) executeWithCircuitBreaker(fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
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

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string { return e.err.Error() }

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrTokenExpired, "token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(domain.ProviderGmail, out.ProviderErrRateLimit, "rate limit exceeded", err, true)
			}
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrAuth, "access denied", err, false)
		case 404:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrNotFound, "not found", err, false)
		case 429:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrRateLimit, "too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer, "server error", err, true)
		}
	}

	return out.NewProviderError(domain.ProviderGmail, out.ProviderErrServer, defaultMsg, err, true)
}

// wrapOAuthError classifies oauth2 endpoint failures. invalid_grant
// means the refresh token is dead; redirect_uri_mismatch and
// invalid_client are configuration bugs, not transient failures.
func (a *GmailAdapter) wrapOAuthError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || strings.Contains(string(re.Body), "invalid_grant") {
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrInvalidGrant, "grant revoked or expired", err, false)
		}
		if re.ErrorCode == "redirect_uri_mismatch" || strings.Contains(string(re.Body), "redirect_uri_mismatch") {
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrRedirectMismatch, "redirect uri does not match app registration", err, false)
		}
		if re.ErrorCode == "invalid_client" {
			return out.NewProviderError(domain.ProviderGmail, out.ProviderErrBadRequest, "oauth client misconfigured", err, false)
		}
		return out.NewProviderError(domain.ProviderGmail, out.ProviderErrAuth, defaultMsg, err, false)
	}

	return out.NewProviderError(domain.ProviderGmail, out.ProviderErrNetwork, defaultMsg, err, true)
}

// convertToken maps an oauth2 token into the port shape.
func convertToken(t *oauth2.Token) *out.Token {
	return &out.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// buildRawMessage assembles the RFC 2822 payload Gmail expects.
func buildRawMessage(msg *domain.OutboundMessage) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}
	buf.WriteString(fmt.Sprintf("Content-Type: %s; charset=UTF-8\r\n", contentType))
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)

	return buf.String()
}

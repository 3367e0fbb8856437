package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.LevelError, Service: "test"})
}

func newTestGmailAdapter(apiEndpoint, revokeURL string) *GmailAdapter {
	return NewGmailAdapter(&GmailConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		APIEndpoint:  apiEndpoint,
		RevokeURL:    revokeURL,
	}, testLogger())
}

// ===========================================================================
// Sending
// ===========================================================================

func TestGmailSend(t *testing.T) {
	var gotRaw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Raw string `json:"raw"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotRaw = body.Raw
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "msg-abc123"}`))
	}))
	defer server.Close()

	a := newTestGmailAdapter(server.URL, "")
	id, err := a.Send(context.Background(), "access-token", &domain.OutboundMessage{
		To:      "dest@example.com",
		Subject: "Season Update",
		Body:    "The schedule is out.",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "msg-abc123" {
		t.Errorf("message id = %q, want msg-abc123", id)
	}

	decoded, err := base64.URLEncoding.DecodeString(gotRaw)
	if err != nil {
		t.Fatalf("raw payload is not base64url: %v", err)
	}
	mime := string(decoded)
	for _, want := range []string{
		"To: dest@example.com\r\n",
		"Subject: Season Update\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
		"The schedule is out.",
	} {
		if !strings.Contains(mime, want) {
			t.Errorf("raw message missing %q:\n%s", want, mime)
		}
	}
}

func TestGmailSendTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"code": 401, "message": "Invalid Credentials"}}`))
	}))
	defer server.Close()

	a := newTestGmailAdapter(server.URL, "")
	_, err := a.Send(context.Background(), "stale-token", &domain.OutboundMessage{
		To: "dest@example.com", Subject: "s", Body: "b",
	})
	if !out.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	var pe *out.ProviderError
	if !errors.As(err, &pe) || pe.Code != out.ProviderErrTokenExpired {
		t.Errorf("error code = %v, want token_expired", err)
	}
}

// ===========================================================================
// Error classification
// ===========================================================================

func TestGmailWrapError(t *testing.T) {
	a := newTestGmailAdapter("", "")

	tests := []struct {
		name      string
		err       error
		wantCode  out.ProviderErrorCode
		retryable bool
	}{
		{"401", &googleapi.Error{Code: 401}, out.ProviderErrTokenExpired, false},
		{"403 rate limit", &googleapi.Error{Code: 403, Message: "User Rate Limit Exceeded"}, out.ProviderErrRateLimit, true},
		{"403 forbidden", &googleapi.Error{Code: 403, Message: "Insufficient Permission"}, out.ProviderErrAuth, false},
		{"404", &googleapi.Error{Code: 404}, out.ProviderErrNotFound, false},
		{"429", &googleapi.Error{Code: 429}, out.ProviderErrRateLimit, true},
		{"503", &googleapi.Error{Code: 503}, out.ProviderErrServer, true},
		{"plain error", errors.New("connection reset"), out.ProviderErrServer, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := a.wrapError(tt.err, "send message")
			var pe *out.ProviderError
			if !errors.As(wrapped, &pe) {
				t.Fatalf("not a ProviderError: %v", wrapped)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", pe.Code, tt.wantCode)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", pe.Retryable, tt.retryable)
			}
		})
	}
}

func TestGmailWrapOAuthError(t *testing.T) {
	a := newTestGmailAdapter("", "")

	tests := []struct {
		name     string
		err      error
		wantCode out.ProviderErrorCode
	}{
		{
			"invalid_grant code",
			&oauth2.RetrieveError{ErrorCode: "invalid_grant"},
			out.ProviderErrInvalidGrant,
		},
		{
			"invalid_grant in body",
			&oauth2.RetrieveError{Body: []byte(`{"error": "invalid_grant"}`)},
			out.ProviderErrInvalidGrant,
		},
		{
			"redirect_uri_mismatch code",
			&oauth2.RetrieveError{ErrorCode: "redirect_uri_mismatch"},
			out.ProviderErrRedirectMismatch,
		},
		{
			"redirect_uri_mismatch in body",
			&oauth2.RetrieveError{Body: []byte(`{"error": "redirect_uri_mismatch"}`)},
			out.ProviderErrRedirectMismatch,
		},
		{
			"invalid_client",
			&oauth2.RetrieveError{ErrorCode: "invalid_client"},
			out.ProviderErrBadRequest,
		},
		{
			"other oauth error",
			&oauth2.RetrieveError{ErrorCode: "access_denied"},
			out.ProviderErrAuth,
		},
		{
			"transport failure",
			errors.New("dial tcp: connection refused"),
			out.ProviderErrNetwork,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := a.wrapOAuthError(tt.err, "token refresh failed")
			var pe *out.ProviderError
			if !errors.As(wrapped, &pe) {
				t.Fatalf("not a ProviderError: %v", wrapped)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", pe.Code, tt.wantCode)
			}
		})
	}
}

// ===========================================================================
// Revocation
// ===========================================================================

func TestGmailRevoke(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"revoked", http.StatusOK, false},
		{"already dead", http.StatusBadRequest, false},
		{"upstream failure", http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotToken string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.ParseForm()
				gotToken = r.PostFormValue("token")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			a := newTestGmailAdapter("", server.URL)
			err := a.Revoke(context.Background(), "refresh-token-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Revoke() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotToken != "refresh-token-1" {
				t.Errorf("revoked token = %q, want refresh-token-1", gotToken)
			}
		})
	}
}

// ===========================================================================
// Message assembly
// ===========================================================================

func TestBuildRawMessage(t *testing.T) {
	tests := []struct {
		name            string
		isHTML          bool
		wantContentType string
	}{
		{"plain text", false, "Content-Type: text/plain; charset=UTF-8"},
		{"html", true, "Content-Type: text/html; charset=UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := buildRawMessage(&domain.OutboundMessage{
				To:      "dest@example.com",
				Subject: "Hello",
				Body:    "<p>Hi</p>",
				IsHTML:  tt.isHTML,
			})
			if !strings.Contains(raw, tt.wantContentType) {
				t.Errorf("missing %q in:\n%s", tt.wantContentType, raw)
			}
			headerEnd := strings.Index(raw, "\r\n\r\n")
			if headerEnd < 0 {
				t.Fatal("no blank line between headers and body")
			}
			if raw[headerEnd+4:] != "<p>Hi</p>" {
				t.Errorf("body = %q", raw[headerEnd+4:])
			}
		})
	}
}

// ===========================================================================
// Refresh
// ===========================================================================

func TestGmailRefreshStickiness(t *testing.T) {
	tests := []struct {
		name             string
		serverRT         string
		wantRefreshToken string
	}{
		// Google usually echoes nothing; the oauth2 package then keeps
		// the input token, which must not count as rotation.
		{"no rotation", "stored-rt", ""},
		{"rotated", "rotated-rt", "rotated-rt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"access_token": "new-at", "token_type": "Bearer", "expires_in": 3600, "refresh_token": %q}`, tt.serverRT)
			}))
			defer server.Close()

			a := newTestGmailAdapter("", "")
			a.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL}

			token, err := a.Refresh(context.Background(), "stored-rt")
			if err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}
			if token.AccessToken != "new-at" {
				t.Errorf("access token = %q, want new-at", token.AccessToken)
			}
			if token.RefreshToken != tt.wantRefreshToken {
				t.Errorf("refresh token = %q, want %q", token.RefreshToken, tt.wantRefreshToken)
			}
		})
	}
}

func TestGmailRefreshInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been revoked."}`))
	}))
	defer server.Close()

	a := newTestGmailAdapter("", "")
	a.config.Endpoint = oauth2.Endpoint{TokenURL: server.URL}

	_, err := a.Refresh(context.Background(), "revoked-rt")
	if !out.IsInvalidGrant(err) {
		t.Fatalf("expected invalid_grant classification, got %v", err)
	}
}

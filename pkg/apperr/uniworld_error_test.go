package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := RefreshFailed("gmail", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() did not return the cause")
	}
}

func TestAppErrorIsMatchesByCode(t *testing.T) {
	a := NotConnected("gmail")
	b := NotConnected("outlook")
	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, InvalidState("x")) {
		t.Error("errors with different codes should not match")
	}
}

func TestFrom(t *testing.T) {
	original := ReconnectRequired("gmail", nil)

	if got := From(original); got != original {
		t.Error("From() should preserve an existing AppError")
	}
	if got := From(fmt.Errorf("wrapping: %w", original)); got != original {
		t.Error("From() should unwrap to the embedded AppError")
	}

	plain := From(errors.New("boom"))
	if plain.Code != CodeInternal || plain.Status != http.StatusInternalServerError {
		t.Errorf("From(plain) = %s/%d, want INTERNAL_ERROR/500", plain.Code, plain.Status)
	}
	if From(nil) != nil {
		t.Error("From(nil) should be nil")
	}
}

func TestCodeOfAndStatusOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   Code
		wantStatus int
	}{
		{"not connected", NotConnected("gmail"), CodeNotConnected, http.StatusBadRequest},
		{"reconnect required", ReconnectRequired("outlook", nil), CodeReconnectRequired, http.StatusUnauthorized},
		{"rate limited", RateLimited("gmail", nil), CodeRateLimited, http.StatusTooManyRequests},
		{"premium", PremiumRequired(), CodePremiumRequired, http.StatusForbidden},
		{"wrapped", fmt.Errorf("context: %w", InvalidState("dead")), CodeInvalidState, http.StatusBadRequest},
		{"plain error", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.wantCode {
				t.Errorf("CodeOf() = %q, want %q", got, tt.wantCode)
			}
			if got := StatusOf(tt.err); got != tt.wantStatus {
				t.Errorf("StatusOf() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code carried across layers and
// surfaced in API responses.
type Code string

const (
	// Generic
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeUnavailable  Code = "SERVICE_UNAVAILABLE"

	// OAuth credential lifecycle
	CodeNotConnected       Code = "NOT_CONNECTED"
	CodeExchangeFailed     Code = "EXCHANGE_FAILED"
	CodeRedirectMismatch   Code = "REDIRECT_URI_MISMATCH"
	CodeRefreshFailed      Code = "REFRESH_FAILED"
	CodeReconnectRequired  Code = "RECONNECT_REQUIRED"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeUnsupportedAccount Code = "UNSUPPORTED_PROVIDER"

	// Mail dispatch
	CodeProviderAuth      Code = "PROVIDER_AUTH_ERROR"
	CodeProviderTransport Code = "PROVIDER_TRANSPORT_ERROR"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeSendFailed        Code = "SEND_FAILED"

	// Subscription gating
	CodePremiumRequired Code = "PREMIUM_REQUIRED"
)

// AppError is the single error type crossing service boundaries.
type AppError struct {
	Code    Code
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is allows errors.Is matching by code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func newError(code Code, status int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func Internal(message string, err error) *AppError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

func InvalidInput(message string) *AppError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

func NotFound(message string) *AppError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

func Unauthorized(message string) *AppError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func Conflict(message string) *AppError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

func Unavailable(message string, err error) *AppError {
	return newError(CodeUnavailable, http.StatusServiceUnavailable, message, err)
}

func NotConnected(provider string) *AppError {
	return newError(CodeNotConnected, http.StatusBadRequest,
		fmt.Sprintf("no %s account connected", provider), nil)
}

func ExchangeFailed(provider string, err error) *AppError {
	return newError(CodeExchangeFailed, http.StatusBadGateway,
		fmt.Sprintf("%s authorization code exchange failed", provider), err)
}

// RedirectMismatch means the provider rejected the registered
// redirect URI. The app registration is broken, so no retry by the
// user can succeed.
func RedirectMismatch(provider string, err error) *AppError {
	return newError(CodeRedirectMismatch, http.StatusInternalServerError,
		fmt.Sprintf("%s redirect uri does not match app registration", provider), err)
}

func RefreshFailed(provider string, err error) *AppError {
	return newError(CodeRefreshFailed, http.StatusBadGateway,
		fmt.Sprintf("%s token refresh failed", provider), err)
}

// ReconnectRequired signals that the stored refresh token is no longer
// usable and the user must go through the consent flow again.
func ReconnectRequired(provider string, err error) *AppError {
	return newError(CodeReconnectRequired, http.StatusUnauthorized,
		fmt.Sprintf("%s connection expired, please reconnect", provider), err)
}

func InvalidState(message string) *AppError {
	return newError(CodeInvalidState, http.StatusBadRequest, message, nil)
}

func UnsupportedProvider(provider string) *AppError {
	return newError(CodeUnsupportedAccount, http.StatusBadRequest,
		fmt.Sprintf("unsupported provider: %s", provider), nil)
}

func ProviderAuth(provider string, err error) *AppError {
	return newError(CodeProviderAuth, http.StatusUnauthorized,
		fmt.Sprintf("%s rejected the access token", provider), err)
}

func ProviderTransport(provider string, err error) *AppError {
	return newError(CodeProviderTransport, http.StatusBadGateway,
		fmt.Sprintf("%s request failed", provider), err)
}

func RateLimited(provider string, err error) *AppError {
	return newError(CodeRateLimited, http.StatusTooManyRequests,
		fmt.Sprintf("%s rate limit exceeded", provider), err)
}

func SendFailed(message string, err error) *AppError {
	return newError(CodeSendFailed, http.StatusBadGateway, message, err)
}

func PremiumRequired() *AppError {
	return newError(CodePremiumRequired, http.StatusForbidden,
		"a premium subscription is required to send emails", nil)
}

// From converts an arbitrary error into an AppError, preserving it if
// it already is one.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("unexpected error", err)
}

// CodeOf extracts the code from an error, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// StatusOf extracts the HTTP status from an error, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

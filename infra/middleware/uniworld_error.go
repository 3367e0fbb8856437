package middleware

import (
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/logger"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler is the centralized Fiber error handler.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)

		response := ErrorResponse{
			Success:   false,
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		var status int
		var appErr *apperr.AppError
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &appErr):
			status = appErr.Status
			response.Error = ErrorDetail{
				Code:    string(appErr.Code),
				Message: appErr.Message,
			}

			log := logger.WithField("request_id", requestID).
				WithField("error_code", string(appErr.Code)).
				WithError(appErr.Err)
			if status >= 500 {
				log.Error("internal error: %s", appErr.Message)
			} else {
				log.Warn("client error: %s", appErr.Message)
			}

		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			response.Error = ErrorDetail{
				Code:    mapHTTPStatusToCode(fiberErr.Code),
				Message: fiberErr.Message,
			}

		default:
			status = fiber.StatusInternalServerError
			response.Error = ErrorDetail{
				Code:    string(apperr.CodeInternal),
				Message: "an unexpected error occurred",
			}

			logger.WithField("request_id", requestID).
				WithError(err).
				WithField("stack", string(debug.Stack())).
				Error("unexpected error: %s", err.Error())
		}

		return c.Status(status).JSON(response)
	}
}

// RequestID tags each request with a unique id.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Locals("request_id", requestID)
		c.Set("X-Request-ID", requestID)
		return c.Next()
	}
}

// RequestLogger logs every request with its outcome.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID, _ := c.Locals("request_id").(string)

		err := c.Next()

		duration := time.Since(start)
		// The error handler has not run yet, so the response still
		// carries the default 200 on failures; the returned error is
		// what decides the status.
		status := statusFromError(err, c.Response().StatusCode())

		log := logger.WithFields(map[string]any{
			"request_id":  requestID,
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
			"ip":          c.IP(),
		})
		if uid, ok := c.Locals("user_id").(uuid.UUID); ok {
			log = log.WithField("user_id", uid.String())
		}

		switch {
		case status >= 500:
			log.Error("request failed: %s %s -> %d", c.Method(), c.Path(), status)
		case status >= 400:
			log.Warn("request rejected: %s %s -> %d", c.Method(), c.Path(), status)
		default:
			log.Info("request completed: %s %s -> %d", c.Method(), c.Path(), status)
		}
		return err
	}
}

// Recover converts panics into 500 responses instead of dropping the
// connection.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]any{
					"panic": r,
					"stack": string(debug.Stack()),
					"path":  c.Path(),
				}).Error("panic recovered")
				err = fiber.NewError(fiber.StatusInternalServerError, "internal server error")
			}
		}()
		return c.Next()
	}
}

// statusFromError resolves the status an error will produce once the
// error handler converts it. A nil error keeps the written status.
func statusFromError(err error, written int) int {
	if err == nil {
		return written
	}

	var appErr *apperr.AppError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &appErr):
		return appErr.Status
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

func mapHTTPStatusToCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(apperr.CodeInvalidInput)
	case fiber.StatusUnauthorized:
		return string(apperr.CodeUnauthorized)
	case fiber.StatusForbidden:
		return string(apperr.CodeForbidden)
	case fiber.StatusNotFound:
		return string(apperr.CodeNotFound)
	case fiber.StatusConflict:
		return string(apperr.CodeConflict)
	case fiber.StatusTooManyRequests:
		return string(apperr.CodeRateLimited)
	case fiber.StatusServiceUnavailable:
		return string(apperr.CodeUnavailable)
	default:
		return string(apperr.CodeInternal)
	}
}

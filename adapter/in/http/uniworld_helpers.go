// Package http implements the HTTP API handlers.
package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"uniworld_server/core/domain"
	"uniworld_server/infra/middleware"
	"uniworld_server/pkg/apperr"
)

// GetUserID extracts the authenticated user's id from request locals.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userID, ok := c.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("not authenticated")
	}
	return userID, nil
}

// providerParam parses and validates the :provider path param.
func providerParam(c *fiber.Ctx) (domain.Provider, error) {
	provider, ok := domain.ParseProvider(c.Params("provider"))
	if !ok {
		return "", apperr.UnsupportedProvider(c.Params("provider"))
	}
	return provider, nil
}

package response

import (
	"github.com/gofiber/fiber/v2"

	"uniworld_server/pkg/apperr"
)

// Envelope is the common JSON shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorBody carries the client-facing error details.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK sends a 200 with data.
func OK(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Data: data})
}

// Created sends a 201 with data.
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{Success: true, Data: data})
}

// Accepted sends a 202 with an optional message.
func Accepted(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusAccepted).JSON(Envelope{Success: true, Message: message})
}

// NoContent sends a 204.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Message sends a 200 with just a message.
func Message(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusOK).JSON(Envelope{Success: true, Message: message})
}

// Error maps an application error onto the envelope.
func Error(c *fiber.Ctx, err error) error {
	appErr := apperr.From(err)
	return c.Status(appErr.Status).JSON(Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:    string(appErr.Code),
			Message: appErr.Message,
		},
	})
}

// Paginated wraps a list with paging metadata.
type Paginated struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

// OKPaginated sends a paginated 200.
func OKPaginated(c *fiber.Ctx, items interface{}, page, pageSize int, total int64) error {
	return OK(c, Paginated{Items: items, Page: page, PageSize: pageSize, Total: total})
}

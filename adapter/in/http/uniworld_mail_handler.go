package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/in"
	"uniworld_server/infra/middleware"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/response"
)

// MailHandler exposes the send and history endpoints.
type MailHandler struct {
	mail in.MailUseCase
}

func NewMailHandler(mail in.MailUseCase) *MailHandler {
	return &MailHandler{mail: mail}
}

// Register mounts the routes. Sending is premium-gated; reading
// history is not.
func (h *MailHandler) Register(api fiber.Router) {
	emails := api.Group("/emails")
	emails.Post("/send", middleware.RequirePremium(), h.Send)
	emails.Post("/bulk", middleware.RequirePremium(), h.SendBulk)
	emails.Get("/", h.History)
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	IsHTML    bool   `json:"is_html"`
	Provider  string `json:"provider"`
	ProgramID string `json:"program_id,omitempty"`
}

type dispatchView struct {
	ID           string     `json:"id"`
	Recipient    string     `json:"recipient,omitempty"`
	Recipients   []string   `json:"recipients,omitempty"`
	Subject      string     `json:"subject"`
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	MessageID    string     `json:"message_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// Send delivers one email through the user's connected provider.
func (h *MailHandler) Send(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	provider, ok := domain.ParseProvider(req.Provider)
	if !ok {
		return apperr.UnsupportedProvider(req.Provider)
	}

	useCaseReq := in.SendRequest{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
		IsHTML:    req.IsHTML,
		Provider:  provider,
	}
	if req.ProgramID != "" {
		programID, err := uuid.Parse(req.ProgramID)
		if err != nil {
			return apperr.InvalidInput("invalid program_id")
		}
		useCaseReq.ProgramID = &programID
	}

	dispatch, err := h.mail.Send(c.Context(), userID, useCaseReq)
	if err != nil {
		return err
	}

	return response.OK(c, fiber.Map{
		"message":  "email sent",
		"dispatch": toDispatchView(dispatch),
	})
}

type bulkSendRequest struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	IsHTML     bool     `json:"is_html"`
	Provider   string   `json:"provider"`
}

// SendBulk fans one message out to many recipients.
func (h *MailHandler) SendBulk(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	var req bulkSendRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}
	provider, ok := domain.ParseProvider(req.Provider)
	if !ok {
		return apperr.UnsupportedProvider(req.Provider)
	}

	result, err := h.mail.SendBulk(c.Context(), userID, in.BulkSendRequest{
		Recipients: req.Recipients,
		Subject:    req.Subject,
		Body:       req.Body,
		IsHTML:     req.IsHTML,
		Provider:   provider,
	})
	if err != nil {
		return err
	}
	return response.OK(c, result)
}

// History lists the user's past dispatches, newest first.
func (h *MailHandler) History(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return err
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	dispatches, total, err := h.mail.History(c.Context(), userID, page, pageSize)
	if err != nil {
		return err
	}

	views := make([]dispatchView, 0, len(dispatches))
	for _, d := range dispatches {
		views = append(views, toDispatchView(d))
	}
	return response.OKPaginated(c, views, page, pageSize, total)
}

func toDispatchView(d *domain.Dispatch) dispatchView {
	return dispatchView{
		ID:           d.ID.String(),
		Recipient:    d.Recipient,
		Recipients:   d.Recipients,
		Subject:      d.Subject,
		Provider:     d.Provider.String(),
		Status:       string(d.Status),
		ErrorMessage: d.ErrorMessage,
		MessageID:    d.MessageID,
		CreatedAt:    d.CreatedAt,
		SentAt:       d.SentAt,
	}
}

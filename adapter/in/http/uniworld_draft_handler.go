package http

import (
	"github.com/gofiber/fiber/v2"

	"uniworld_server/core/port/in"
	"uniworld_server/pkg/apperr"
	"uniworld_server/pkg/response"
)

// DraftHandler exposes the AI draft suggestion endpoints.
type DraftHandler struct {
	drafts in.DraftUseCase
}

func NewDraftHandler(drafts in.DraftUseCase) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

func (h *DraftHandler) Register(api fiber.Router) {
	drafts := api.Group("/drafts")
	drafts.Post("/subject", h.SuggestSubject)
	drafts.Post("/body", h.SuggestBody)
}

type draftRequest struct {
	ProgramName string `json:"program_name"`
	University  string `json:"university"`
	UserName    string `json:"user_name"`
	Purpose     string `json:"purpose"`
	Hints       string `json:"hints"`
}

func (r *draftRequest) toContext() in.DraftContext {
	return in.DraftContext{
		ProgramName: r.ProgramName,
		University:  r.University,
		UserName:    r.UserName,
		Purpose:     r.Purpose,
		Hints:       r.Hints,
	}
}

// SuggestSubject proposes subject lines for an inquiry email.
func (h *DraftHandler) SuggestSubject(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}

	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}

	subjects, err := h.drafts.SuggestSubject(c.Context(), req.toContext())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"subjects": subjects})
}

// SuggestBody drafts an email body for an inquiry email.
func (h *DraftHandler) SuggestBody(c *fiber.Ctx) error {
	if _, err := GetUserID(c); err != nil {
		return err
	}

	var req draftRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid request body")
	}

	body, err := h.drafts.SuggestBody(c.Context(), req.toContext())
	if err != nil {
		return err
	}
	return response.OK(c, fiber.Map{"body": body})
}

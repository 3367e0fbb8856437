package in

import (
	"context"

	"github.com/google/uuid"

	"uniworld_server/core/domain"
)

// SendRequest is one outbound email.
type SendRequest struct {
	Recipient string
	Subject   string
	Body      string
	IsHTML    bool
	Provider  domain.Provider
	ProgramID *uuid.UUID
}

// BulkSendRequest fans one message out to many recipients.
type BulkSendRequest struct {
	Recipients []string
	Subject    string
	Body       string
	IsHTML     bool
	Provider   domain.Provider
}

// BulkSendResult summarizes a fan-out.
type BulkSendResult struct {
	Total  int               `json:"total"`
	Sent   int               `json:"sent"`
	Failed int               `json:"failed"`
	Errors map[string]string `json:"errors,omitempty"`
}

// MailUseCase is the dispatch surface exposed to handlers.
type MailUseCase interface {
	// Send delivers one email through the user's connected provider
	// and returns the recorded dispatch.
	Send(ctx context.Context, userID uuid.UUID, req SendRequest) (*domain.Dispatch, error)

	// SendBulk delivers to each recipient independently; one failure
	// does not stop the rest.
	SendBulk(ctx context.Context, userID uuid.UUID, req BulkSendRequest) (*BulkSendResult, error)

	// History lists the user's past dispatches, newest first.
	History(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Dispatch, int64, error)
}

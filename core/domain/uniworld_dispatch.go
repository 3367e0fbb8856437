package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DispatchStatus tracks a send through its lifecycle.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// Dispatch is one outbound email send attempt, single or bulk.
type Dispatch struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Recipient    string
	Recipients   []string
	ProgramID    *uuid.UUID
	Subject      string
	BodyPreview  string
	Provider     Provider
	Status       DispatchStatus
	ErrorMessage string
	MessageID    string
	CreatedAt    time.Time
	SentAt       *time.Time
}

// OutboundMessage is what actually goes over the wire to a provider.
type OutboundMessage struct {
	To      string
	Subject string
	Body    string
	IsHTML  bool
}

const previewLimit = 200

// NewDispatch records a pending single-recipient send.
func NewDispatch(userID uuid.UUID, provider Provider, recipient, subject, body string) *Dispatch {
	return &Dispatch{
		ID:          uuid.New(),
		UserID:      userID,
		Recipient:   recipient,
		Subject:     subject,
		BodyPreview: truncate(body, previewLimit),
		Provider:    provider,
		Status:      DispatchPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewBulkDispatch records a pending multi-recipient send.
func NewBulkDispatch(userID uuid.UUID, provider Provider, recipients []string, subject, body string) *Dispatch {
	d := NewDispatch(userID, provider, "", subject, body)
	d.Recipients = recipients
	return d
}

// MarkSent transitions to sent with the provider's message id.
func (d *Dispatch) MarkSent(messageID string) {
	d.Status = DispatchSent
	d.MessageID = messageID
	now := time.Now().UTC()
	d.SentAt = &now
}

// MarkFailed transitions to failed with the terminal error.
func (d *Dispatch) MarkFailed(err error) {
	d.Status = DispatchFailed
	if err != nil {
		d.ErrorMessage = truncate(err.Error(), 500)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

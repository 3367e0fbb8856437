package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
)

// DispatchAdapter implements out.DispatchRepository on PostgreSQL.
type DispatchAdapter struct {
	db *sqlx.DB
}

var _ out.DispatchRepository = (*DispatchAdapter)(nil)

func NewDispatchAdapter(db *sqlx.DB) *DispatchAdapter {
	return &DispatchAdapter{db: db}
}

// Create inserts a pending dispatch.
func (a *DispatchAdapter) Create(ctx context.Context, d *domain.Dispatch) error {
	entity := toDispatchEntity(d)

	query := `
		INSERT INTO email_dispatches (id, user_id, recipient, recipients, program_id,
		                              subject, body_preview, provider, status,
		                              error_message, message_id, created_at, sent_at)
		VALUES (:id, :user_id, :recipient, :recipients, :program_id,
		        :subject, :body_preview, :provider, :status,
		        :error_message, :message_id, :created_at, :sent_at)`

	if _, err := a.db.NamedExecContext(ctx, query, entity); err != nil {
		return fmt.Errorf("insert dispatch: %w", err)
	}
	return nil
}

// UpdateOutcome records the terminal status of a dispatch.
func (a *DispatchAdapter) UpdateOutcome(ctx context.Context, d *domain.Dispatch) error {
	entity := toDispatchEntity(d)

	query := `
		UPDATE email_dispatches
		SET status = :status,
		    error_message = :error_message,
		    message_id = :message_id,
		    sent_at = :sent_at
		WHERE id = :id`

	if _, err := a.db.NamedExecContext(ctx, query, entity); err != nil {
		return fmt.Errorf("update dispatch: %w", err)
	}
	return nil
}

// ListByUser returns the user's dispatches, newest first.
func (a *DispatchAdapter) ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Dispatch, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM email_dispatches WHERE user_id = $1`
	if err := a.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count dispatches: %w", err)
	}

	var entities []out.DispatchEntity
	query := `
		SELECT id, user_id, recipient, recipients, program_id,
		       subject, body_preview, provider, status,
		       error_message, message_id, created_at, sent_at
		FROM email_dispatches
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	offset := (page - 1) * pageSize
	if err := a.db.SelectContext(ctx, &entities, query, userID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("list dispatches: %w", err)
	}

	dispatches := make([]*domain.Dispatch, 0, len(entities))
	for i := range entities {
		dispatches = append(dispatches, toDispatchDomain(&entities[i]))
	}
	return dispatches, total, nil
}

// ===========================================================================
// Mapping
// ===========================================================================

func toDispatchEntity(d *domain.Dispatch) *out.DispatchEntity {
	entity := &out.DispatchEntity{
		ID:          d.ID,
		UserID:      d.UserID,
		Recipient:   d.Recipient,
		Recipients:  pq.StringArray(d.Recipients),
		Subject:     d.Subject,
		BodyPreview: d.BodyPreview,
		Provider:    d.Provider.String(),
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt,
	}
	if d.ProgramID != nil {
		entity.ProgramID = uuid.NullUUID{UUID: *d.ProgramID, Valid: true}
	}
	if d.ErrorMessage != "" {
		entity.ErrorMessage = sql.NullString{String: d.ErrorMessage, Valid: true}
	}
	if d.MessageID != "" {
		entity.MessageID = sql.NullString{String: d.MessageID, Valid: true}
	}
	if d.SentAt != nil {
		entity.SentAt = sql.NullTime{Time: *d.SentAt, Valid: true}
	}
	return entity
}

func toDispatchDomain(entity *out.DispatchEntity) *domain.Dispatch {
	d := &domain.Dispatch{
		ID:          entity.ID,
		UserID:      entity.UserID,
		Recipient:   entity.Recipient,
		Recipients:  []string(entity.Recipients),
		Subject:     entity.Subject,
		BodyPreview: entity.BodyPreview,
		Provider:    domain.Provider(entity.Provider),
		Status:      domain.DispatchStatus(entity.Status),
		CreatedAt:   entity.CreatedAt,
	}
	if entity.ProgramID.Valid {
		id := entity.ProgramID.UUID
		d.ProgramID = &id
	}
	if entity.ErrorMessage.Valid {
		d.ErrorMessage = entity.ErrorMessage.String
	}
	if entity.MessageID.Valid {
		d.MessageID = entity.MessageID.String
	}
	if entity.SentAt.Valid {
		t := entity.SentAt.Time
		d.SentAt = &t
	}
	return d
}

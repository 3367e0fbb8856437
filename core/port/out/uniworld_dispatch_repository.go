package out

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"uniworld_server/core/domain"
)

// DispatchEntity is the persistence shape of a dispatch row.
type DispatchEntity struct {
	ID           uuid.UUID      `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	Recipient    string         `db:"recipient"`
	Recipients   pq.StringArray `db:"recipients"`
	ProgramID    uuid.NullUUID  `db:"program_id"`
	Subject      string         `db:"subject"`
	BodyPreview  string         `db:"body_preview"`
	Provider     string         `db:"provider"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
	MessageID    sql.NullString `db:"message_id"`
	CreatedAt    time.Time      `db:"created_at"`
	SentAt       sql.NullTime   `db:"sent_at"`
}

// DispatchRepository records outbound send attempts.
type DispatchRepository interface {
	// Create inserts a pending dispatch.
	Create(ctx context.Context, d *domain.Dispatch) error

	// UpdateOutcome persists the terminal status of a dispatch.
	UpdateOutcome(ctx context.Context, d *domain.Dispatch) error

	// ListByUser returns the user's dispatches, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*domain.Dispatch, int64, error)
}

// DispatchBodyRepository archives full message bodies off-row.
type DispatchBodyRepository interface {
	// Save archives the full body under the dispatch id.
	Save(ctx context.Context, dispatchID uuid.UUID, body string) error

	// Load retrieves an archived body, or ErrNotFound.
	Load(ctx context.Context, dispatchID uuid.UUID) (string, error)
}

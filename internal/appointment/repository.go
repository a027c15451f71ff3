package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

var (
	ErrAppointmentNotFound     = &clinic.Error{Kind: clinic.KindNotFound, Msg: "appointment not found"}
	ErrInvalidStatusTransition = &clinic.Error{Kind: clinic.KindConflict, Msg: "invalid status transition"}
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	FindByIdempotencyKeys(ctx context.Context, keys []string) ([]Appointment, error)

	// Creation and updates
	UpsertPending(ctx context.Context, d Draft) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error)
	ApplyReschedule(ctx context.Context, id uuid.UUID, from []Status, c Change) (*Appointment, error)

	// Queries
	List(ctx context.Context, f Filter) ([]Appointment, error)
	Upcoming(ctx context.Context, patientID uuid.UUID, after time.Time, limit int) ([]Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

package slot

import (
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

var (
	ErrSlotNotFound       = &clinic.Error{Kind: clinic.KindNotFound, Msg: "slot not found"}
	ErrSlotUnavailable    = &clinic.Error{Kind: clinic.KindConflict, Msg: "slot is not available"}
	ErrNothingToRelease   = &clinic.Error{Kind: clinic.KindNotFound, Msg: "no slot is bound to the appointment"}
	ErrInvalidDateRange   = &clinic.Error{Kind: clinic.KindValidation, Msg: "from must not be after to"}
	ErrNoSlotsRequested   = &clinic.Error{Kind: clinic.KindValidation, Msg: "at least one slot id is required"}
	ErrDuplicateSlotInSet = &clinic.Error{Kind: clinic.KindValidation, Msg: "slot ids must be unique"}
)

type Slot struct {
	ID              uuid.UUID
	SlotType        clinic.SlotType
	Date            time.Time
	AppointmentType clinic.AppointmentType
	Available       bool
	AppointmentID   *uuid.UUID
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reservation is what a booking needs to know about a slot it holds or is about to hold.
type Reservation struct {
	SlotID          uuid.UUID
	SlotType        clinic.SlotType
	AppointmentType clinic.AppointmentType
	Date            time.Time
}

type Binding struct {
	SlotID        uuid.UUID
	AppointmentID uuid.UUID
}

type Query struct {
	From            time.Time
	To              time.Time
	AppointmentType clinic.AppointmentType // empty matches every type
	Limit           int
}

package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusScheduled   Status = "SCHEDULED"
	StatusRescheduled Status = "RESCHEDULED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusExpired     Status = "EXPIRED"
)

var transitions = map[Status][]Status{
	StatusPending:     {StatusScheduled, StatusExpired},
	StatusScheduled:   {StatusCancelled, StatusRescheduled, StatusCompleted},
	StatusRescheduled: {StatusCancelled, StatusRescheduled, StatusCompleted},
}

// Active statuses hold a slot the patient is expected to attend.
var activeStatuses = []Status{StatusScheduled, StatusRescheduled}

func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusScheduled, StatusRescheduled, StatusCompleted, StatusCancelled, StatusExpired:
		return s, nil
	}
	return "", clinic.Errorf(clinic.KindValidation, "unknown appointment status %q", raw)
}

type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	Status          Status
	Timing          time.Time
	SlotType        clinic.SlotType
	AppointmentType clinic.AppointmentType
	PaymentMode     clinic.PaymentMode
	Amount          int64
	Notes           *string
	IdempotencyKey  string
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Draft is a pending appointment about to be written.
type Draft struct {
	PatientID       uuid.UUID
	IdempotencyKey  string
	Timing          time.Time
	SlotType        clinic.SlotType
	AppointmentType clinic.AppointmentType
	PaymentMode     clinic.PaymentMode
	Amount          int64
	Notes           *string
	ExpiresAt       time.Time
}

// Change is the in-place update applied by a reschedule.
type Change struct {
	Timing          time.Time
	SlotType        clinic.SlotType
	AppointmentType clinic.AppointmentType
	Amount          int64
}

type Filter struct {
	PatientID       uuid.UUID
	IDs             []uuid.UUID
	Status          Status
	Day             *time.Time
	SlotType        clinic.SlotType
	AppointmentType clinic.AppointmentType
	Limit           int
}

type ScheduleRequest struct {
	SlotIDs     []uuid.UUID
	PatientID   uuid.UUID
	PaymentMode clinic.PaymentMode
	// Attempt distinguishes deliberate re-bookings of the same slot from retries
	// of one booking. Retries must reuse the attempt number.
	Attempt int
	Notes   string
}

type ScheduleResult struct {
	Appointments []Appointment
	Billing      *billing.Entry
	Total        int64
	Replayed     bool
}

type CancelRequest struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
}

type RescheduleRequest struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	NewSlotID     uuid.UUID
}

type BulkItem struct {
	SlotID      uuid.UUID
	PatientID   uuid.UUID
	PaymentMode clinic.PaymentMode
	Attempt     int
}

type BulkResult struct {
	PatientID     uuid.UUID
	SlotID        uuid.UUID
	Success       bool
	AppointmentID *uuid.UUID
	ErrorMsg      string
	ErrorKind     clinic.Kind
}

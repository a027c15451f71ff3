package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

// SlotRegistry is satisfied by *slot.PgRegistry.
type SlotRegistry interface {
	AreAllAvailable(ctx context.Context, ids []uuid.UUID) ([]slot.Reservation, error)
	ReserveAll(ctx context.Context, bindings []slot.Binding) ([]slot.Reservation, error)
	BindToAppointment(ctx context.Context, slotID, appointmentID uuid.UUID) (*slot.Slot, error)
	Release(ctx context.Context, appointmentID uuid.UUID) (*slot.Slot, error)
}

// Ledger is satisfied by *billing.Ledger.
type Ledger interface {
	Charge(ctx context.Context, req billing.ChargeRequest) (*billing.Entry, error)
	RefundAppointment(ctx context.Context, req billing.RefundRequest) (*billing.Entry, error)
	AdjustArrears(ctx context.Context, req billing.AdjustRequest) (*billing.Entry, error)
	ChargesForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]billing.Entry, error)
}

// PatientGate is satisfied by *patient.PgGate.
type PatientGate interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
	HasVitalInfo(ctx context.Context, id uuid.UUID) error
	HasValidInsurance(ctx context.Context, id uuid.UUID) error
	ContactPhone(ctx context.Context, p *patient.Patient) (string, error)
}

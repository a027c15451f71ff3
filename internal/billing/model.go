package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var (
	ErrBillingNotFound  = &clinic.Error{Kind: clinic.KindNotFound, Msg: "billing not found"}
	ErrRefundOfRefund   = &clinic.Error{Kind: clinic.KindValidation, Msg: "a refund cannot be refunded"}
	ErrNotRefundable    = &clinic.Error{Kind: clinic.KindValidation, Msg: "only successful charges can be refunded"}
	ErrInvalidAmount    = &clinic.Error{Kind: clinic.KindValidation, Msg: "amount must be positive"}
	ErrNoAppointments   = &clinic.Error{Kind: clinic.KindValidation, Msg: "billing must reference at least one appointment"}
	ErrGatewayFailed    = &clinic.Error{Kind: clinic.KindUpstream, Msg: "payment gateway failed"}
	ErrStatusTransition = &clinic.Error{Kind: clinic.KindConflict, Msg: "billing is not in the expected status"}
)

// Entry is one row of the ledger. Refunds are separate rows with IsRefund set;
// the charge they reverse is never modified.
type Entry struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PayerName      string
	Contact        *string
	AppointmentIDs []uuid.UUID
	Amount         int64
	PaymentMode    clinic.PaymentMode
	Status         Status
	IsRefund       bool
	Notes          *string
	GatewayRef     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Payer struct {
	PatientID uuid.UUID
	Name      string
	Phone     string
}

type ChargeRequest struct {
	Payer          Payer
	AppointmentIDs []uuid.UUID
	Amount         int64
	PaymentMode    clinic.PaymentMode
	Notes          string
}

type RefundRequest struct {
	Payer         Payer
	AppointmentID uuid.UUID
	Amount        int64
	PaymentMode   clinic.PaymentMode
	Notes         string
}

// AdjustRequest settles a price difference for one appointment. A positive
// Difference charges the payer, a negative one refunds them.
type AdjustRequest struct {
	Payer         Payer
	AppointmentID uuid.UUID
	Difference    int64
	PaymentMode   clinic.PaymentMode
	Notes         string
}

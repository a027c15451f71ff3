package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

var (
	ErrPatientNotFound    = &clinic.Error{Kind: clinic.KindNotFound, Msg: "patient not found"}
	ErrNoGuarantor        = &clinic.Error{Kind: clinic.KindNotFound, Msg: "patient has no guarantor"}
	ErrContactAmbiguous   = &clinic.Error{Kind: clinic.KindValidation, Msg: "patient must have exactly one of phone number or guarantor"}
	ErrNoContactReachable = &clinic.Error{Kind: clinic.KindNotFound, Msg: "no phone number reachable for patient"}
)

// Patient is a clinic patient. A dependant has no phone of their own and is
// reached through their guarantor.
type Patient struct {
	ID               uuid.UUID
	FullName         *string
	PhoneNumber      *string
	GuarantorID      *uuid.UUID
	DateOfBirth      *time.Time
	InsuranceName    clinic.InsuranceName
	InsuranceID      *string
	VerificationCode *string
	Deleted          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (p *Patient) Validate() error {
	hasPhone := p.PhoneNumber != nil && *p.PhoneNumber != ""
	hasGuarantor := p.GuarantorID != nil && *p.GuarantorID != uuid.Nil
	if hasPhone == hasGuarantor {
		return ErrContactAmbiguous
	}
	return nil
}

func (p *Patient) DisplayName() string {
	if p.FullName != nil && *p.FullName != "" {
		return *p.FullName
	}
	return "patient " + p.ID.String()
}

package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

const patientColumns = `id, full_name, phone_number, guarantor_id, date_of_birth, insurance_name, insurance_id, verification_code, deleted, created_at, updated_at`

// PgGate answers the profile and eligibility questions the booking workflow asks.
type PgGate struct {
	db db.Querier
}

func NewPgGate(q db.Querier) *PgGate {
	return &PgGate{db: q}
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.FullName,
		&p.PhoneNumber,
		&p.GuarantorID,
		&p.DateOfBirth,
		&p.InsuranceName,
		&p.InsuranceID,
		&p.VerificationCode,
		&p.Deleted,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (g *PgGate) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := g.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1 AND NOT deleted
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, fmt.Errorf("patient %s: %w", id, err)
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	return p, nil
}

// GetParentPatient returns the guarantor of a dependant.
func (g *PgGate) GetParentPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := g.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.GuarantorID == nil {
		return nil, ErrNoGuarantor
	}
	return g.GetPatient(ctx, *p.GuarantorID)
}

func (g *PgGate) HasVitalInfo(ctx context.Context, id uuid.UUID) error {
	p, err := g.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	return clinic.CheckVitalInfo(p.FullName, p.DateOfBirth)
}

func (g *PgGate) HasValidInsurance(ctx context.Context, id uuid.UUID) error {
	p, err := g.GetPatient(ctx, id)
	if err != nil {
		return err
	}
	return clinic.CheckInsurance(p.InsuranceName, p.InsuranceID)
}

// ContactPhone is the patient's own phone or, for a dependant, the guarantor's.
func (g *PgGate) ContactPhone(ctx context.Context, p *Patient) (string, error) {
	if p.PhoneNumber != nil && *p.PhoneNumber != "" {
		return *p.PhoneNumber, nil
	}
	if p.GuarantorID == nil {
		return "", ErrNoContactReachable
	}
	parent, err := g.GetPatient(ctx, *p.GuarantorID)
	if err != nil {
		return "", err
	}
	if parent.PhoneNumber == nil || *parent.PhoneNumber == "" {
		return "", ErrNoContactReachable
	}
	return *parent.PhoneNumber, nil
}

// Create inserts a patient after checking the contact rule.
func (g *PgGate) Create(ctx context.Context, p Patient) (*Patient, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.InsuranceName == "" {
		p.InsuranceName = clinic.InsuranceNone
	}

	row := g.db.QueryRow(ctx, `
		INSERT INTO patients (id, full_name, phone_number, guarantor_id, date_of_birth, insurance_name, insurance_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+patientColumns,
		p.ID, p.FullName, p.PhoneNumber, p.GuarantorID, p.DateOfBirth, p.InsuranceName, p.InsuranceID)

	created, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return created, nil
}

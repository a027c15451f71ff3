package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	Insert(ctx context.Context, e Entry) (*Entry, error)
	MarkStatus(ctx context.Context, id uuid.UUID, from, to Status, gatewayRef *string) (*Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error)
}

const entryColumns = `id, patient_id, payer_name, contact, appointment_ids, amount, payment_mode, status, is_refund, notes, gateway_ref, created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.PayerName,
		&e.Contact,
		&e.AppointmentIDs,
		&e.Amount,
		&e.PaymentMode,
		&e.Status,
		&e.IsRefund,
		&e.Notes,
		&e.GatewayRef,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillingNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) Insert(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO billings (id, patient_id, payer_name, contact, appointment_ids, amount, payment_mode, status, is_refund, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+entryColumns,
		e.ID, e.PatientID, e.PayerName, e.Contact, e.AppointmentIDs, e.Amount, e.PaymentMode, e.Status, e.IsRefund, e.Notes)

	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("insert billing: %w", err)
	}
	return entry, nil
}

func (r *PgRepository) MarkStatus(ctx context.Context, id uuid.UUID, from, to Status, gatewayRef *string) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE billings
		SET status = $2,
		    gateway_ref = COALESCE($4, gateway_ref),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns, id, to, from, gatewayRef)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, ErrBillingNotFound) {
			return nil, fmt.Errorf("billing %s %s->%s: %w", id, from, to, ErrStatusTransition)
		}
		return nil, fmt.Errorf("update billing status: %w", err)
	}
	return entry, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM billings
		WHERE id = $1 AND NOT deleted
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM billings
		WHERE $1 = ANY(appointment_ids) AND NOT deleted
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list billings for appointment: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

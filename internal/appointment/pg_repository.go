package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

const appointmentColumns = `id, patient_id, status, timing, slot_type, appointment_type, payment_mode, amount, notes, idempotency_key, expires_at, created_at, updated_at`

const defaultListLimit = 10

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Status,
		&a.Timing,
		&a.SlotType,
		&a.AppointmentType,
		&a.PaymentMode,
		&a.Amount,
		&a.Notes,
		&a.IdempotencyKey,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND NOT deleted
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindByIdempotencyKeys(ctx context.Context, keys []string) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE idempotency_key = ANY($1)
	`, keys)
	if err != nil {
		return nil, fmt.Errorf("find appointments by key: %w", err)
	}
	return collect(rows)
}

// UpsertPending inserts a PENDING appointment or returns the row already
// written under the same idempotency key. A still-pending row has its hold extended.
func (r *PgRepository) UpsertPending(ctx context.Context, d Draft) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, status, timing, slot_type, appointment_type, payment_mode, amount, notes, idempotency_key, expires_at, created_at, updated_at)
		VALUES ($1, $2, 'PENDING', $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (idempotency_key) DO UPDATE
		SET expires_at = CASE WHEN appointments.status = 'PENDING' THEN EXCLUDED.expires_at ELSE appointments.expires_at END,
		    updated_at = now()
		RETURNING `+appointmentColumns,
		uuid.New(), d.PatientID, d.Timing, d.SlotType, d.AppointmentType, d.PaymentMode, d.Amount, d.Notes, d.IdempotencyKey, d.ExpiresAt)

	a, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("upsert pending appointment: %w", err)
	}
	return a, nil
}

// UpdateStatus moves the appointment to `to` only if its current status is one of `from`.
func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    expires_at = CASE WHEN $2 = 'PENDING' THEN expires_at ELSE NULL END,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		  AND NOT deleted
		RETURNING `+appointmentColumns, id, to, statusStrings(from))

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("appointment %s -> %s: %w", id, to, ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (r *PgRepository) ApplyReschedule(ctx context.Context, id uuid.UUID, from []Status, c Change) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'RESCHEDULED',
		    timing = $2,
		    slot_type = $3,
		    appointment_type = $4,
		    amount = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($6)
		  AND NOT deleted
		RETURNING `+appointmentColumns, id, c.Timing, c.SlotType, c.AppointmentType, c.Amount, statusStrings(from))

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("reschedule appointment %s: %w", id, ErrInvalidStatusTransition)
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}
	return a, nil
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]Appointment, error) {
	where := []string{"patient_id = $1", "NOT deleted"}
	args := []any{f.PatientID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if len(f.IDs) > 0 {
		add("id = ANY($%d)", f.IDs)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Day != nil {
		add("timing >= $%d", clinic.StartOfDayUTC(*f.Day))
		add("timing <= $%d", clinic.EndOfDayUTC(*f.Day))
	}
	if f.SlotType != "" {
		add("slot_type = $%d", f.SlotType)
	}
	if f.AppointmentType != "" {
		add("appointment_type = $%d", f.AppointmentType)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` +
		strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY timing LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) Upcoming(ctx context.Context, patientID uuid.UUID, after time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND status = ANY($2)
		  AND timing >= $3
		  AND NOT deleted
		ORDER BY timing
		LIMIT $4
	`, patientID, statusStrings(activeStatuses), after, limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'PENDING'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
		  AND NOT deleted
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("find expired appointments: %w", err)
	}
	return collect(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("event %s: payload is not valid JSON", ev.EventType)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.EventType, ev.AppointmentID, payload)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

const DefaultQueryLimit = 10

const slotColumns = `id, slot_type, date, appointment_type, available, appointment_id, deleted, created_at, updated_at`

// PgRegistry owns the available/appointment_id pair of every slot row.
// Each mutation is a single conditional UPDATE so concurrent callers cannot
// both observe a slot as free and bind it.
type PgRegistry struct {
	db           db.Querier
	defaultLimit int
}

func NewPgRegistry(q db.Querier, defaultLimit int) *PgRegistry {
	if defaultLimit <= 0 {
		defaultLimit = DefaultQueryLimit
	}
	return &PgRegistry{db: q, defaultLimit: defaultLimit}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.SlotType,
		&s.Date,
		&s.AppointmentType,
		&s.Available,
		&s.AppointmentID,
		&s.Deleted,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRegistry) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1 AND NOT deleted
	`, id)
	return scanSlot(row)
}

// FindAvailable lists free slots whose day falls within [From, To], earliest first.
func (r *PgRegistry) FindAvailable(ctx context.Context, q Query) ([]Slot, error) {
	if q.From.After(q.To) {
		return nil, ErrInvalidDateRange
	}
	limit := q.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE available
		  AND NOT deleted
		  AND date >= $1
		  AND date <= $2
		  AND ($3 = '' OR appointment_type = $3)
		ORDER BY date, length(slot_type), slot_type
		LIMIT $4
	`, clinic.StartOfDayUTC(q.From), clinic.EndOfDayUTC(q.To), string(q.AppointmentType), limit)
	if err != nil {
		return nil, fmt.Errorf("query available slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AreAllAvailable reads every requested slot in one statement and fails with a
// conflict if any of them is missing, deleted or already bound. It never mutates.
func (r *PgRegistry) AreAllAvailable(ctx context.Context, ids []uuid.UUID) ([]Reservation, error) {
	if len(ids) == 0 {
		return nil, ErrNoSlotsRequested
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, ErrDuplicateSlotInSet
		}
		seen[id] = struct{}{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, slot_type, appointment_type, date, available, deleted
		FROM slots
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	type state struct {
		res       Reservation
		available bool
		deleted   bool
	}
	found := make(map[uuid.UUID]state, len(ids))
	for rows.Next() {
		var st state
		if err := rows.Scan(&st.res.SlotID, &st.res.SlotType, &st.res.AppointmentType, &st.res.Date, &st.available, &st.deleted); err != nil {
			return nil, err
		}
		found[st.res.SlotID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]Reservation, 0, len(ids))
	for _, id := range ids {
		st, ok := found[id]
		if !ok || st.deleted || !st.available {
			return nil, fmt.Errorf("slot %s: %w", id, ErrSlotUnavailable)
		}
		result = append(result, st.res)
	}
	return result, nil
}

// ReserveAll binds every slot to its appointment or none of them.
func (r *PgRegistry) ReserveAll(ctx context.Context, bindings []Binding) ([]Reservation, error) {
	if len(bindings) == 0 {
		return nil, ErrNoSlotsRequested
	}

	result := make([]Reservation, 0, len(bindings))
	err := db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, b := range bindings {
			var res Reservation
			err := tx.QueryRow(ctx, `
				UPDATE slots
				SET available = false,
				    appointment_id = $2,
				    updated_at = now()
				WHERE id = $1
				  AND available
				  AND NOT deleted
				RETURNING id, slot_type, appointment_type, date
			`, b.SlotID, b.AppointmentID).Scan(&res.SlotID, &res.SlotType, &res.AppointmentType, &res.Date)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("reserve slot %s: %w", b.SlotID, ErrSlotUnavailable)
				}
				return fmt.Errorf("reserve slot %s: %w", b.SlotID, err)
			}
			result = append(result, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRegistry) BindToAppointment(ctx context.Context, slotID, appointmentID uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET available = false,
		    appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND available
		  AND NOT deleted
		RETURNING `+slotColumns, slotID, appointmentID)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, fmt.Errorf("bind slot %s: %w", slotID, ErrSlotUnavailable)
		}
		return nil, fmt.Errorf("bind slot %s: %w", slotID, err)
	}
	return s, nil
}

// Release frees the slot bound to the appointment. Releasing twice reports
// ErrNothingToRelease the second time and changes nothing.
func (r *PgRegistry) Release(ctx context.Context, appointmentID uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET available = true,
		    appointment_id = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
		  AND NOT available
		RETURNING `+slotColumns, appointmentID)

	s, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrNothingToRelease
		}
		return nil, fmt.Errorf("release slot for appointment %s: %w", appointmentID, err)
	}
	return s, nil
}

package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
)

// Plan describes which slots a month gets.
type Plan struct {
	// AppointmentType served by generated slots. Empty rotates through every type.
	AppointmentType clinic.AppointmentType
	SlotTypes       []clinic.SlotType
	SkipWeekdays    []time.Weekday
}

func DefaultPlan() Plan {
	return Plan{
		SlotTypes:    clinic.SlotTypes,
		SkipWeekdays: []time.Weekday{time.Sunday},
	}
}

type Generator struct {
	db db.Querier
}

func NewGenerator(q db.Querier) *Generator {
	return &Generator{db: q}
}

// GenerateMonth creates the slots of the month containing month. Existing
// slots are left untouched, so it can run repeatedly. It returns the number
// of slots created.
func (g *Generator) GenerateMonth(ctx context.Context, month time.Time, plan Plan) (int64, error) {
	if len(plan.SlotTypes) == 0 {
		plan.SlotTypes = clinic.SlotTypes
	}
	if plan.AppointmentType != "" {
		if _, err := clinic.ParseAppointmentType(string(plan.AppointmentType)); err != nil {
			return 0, err
		}
	}

	slotTypes, dates, apptTypes := expandPlan(month, plan)
	if len(dates) == 0 {
		return 0, nil
	}

	tag, err := g.db.Exec(ctx, `
		INSERT INTO slots (slot_type, date, appointment_type)
		SELECT t.slot_type, t.date, t.appointment_type
		FROM unnest($1::text[], $2::timestamptz[], $3::text[]) AS t(slot_type, date, appointment_type)
		ON CONFLICT (date, slot_type, appointment_type) DO NOTHING
	`, slotTypes, dates, apptTypes)
	if err != nil {
		return 0, fmt.Errorf("insert slots for %s: %w", month.Format("2006-01"), err)
	}
	return tag.RowsAffected(), nil
}

func expandPlan(month time.Time, plan Plan) ([]string, []time.Time, []string) {
	skip := make(map[time.Weekday]bool, len(plan.SkipWeekdays))
	for _, d := range plan.SkipWeekdays {
		skip[d] = true
	}

	first := clinic.StartOfDayUTC(time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC))
	next := first.AddDate(0, 1, 0)

	var (
		slotTypes []string
		dates     []time.Time
		apptTypes []string
		n         int
	)
	for day := first; day.Before(next); day = day.AddDate(0, 0, 1) {
		if skip[day.Weekday()] {
			continue
		}
		for _, st := range plan.SlotTypes {
			at := plan.AppointmentType
			if at == "" {
				at = clinic.AppointmentTypes[n%len(clinic.AppointmentTypes)]
			}
			n++
			slotTypes = append(slotTypes, string(st))
			dates = append(dates, day)
			apptTypes = append(apptTypes, string(at))
		}
	}
	return slotTypes, dates, apptTypes
}

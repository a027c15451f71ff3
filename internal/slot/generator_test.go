package slot

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

func TestExpandPlanSkipsWeekdays(t *testing.T) {
	// February 2025 has 28 days, four of them Sundays.
	month := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	slotTypes, dates, apptTypes := expandPlan(month, DefaultPlan())
	require.Len(t, dates, 24*len(clinic.SlotTypes))
	require.Len(t, slotTypes, len(dates))
	require.Len(t, apptTypes, len(dates))

	for _, d := range dates {
		require.NotEqual(t, time.Sunday, d.Weekday())
		require.Equal(t, time.February, d.Month())
	}
	require.Equal(t, string(clinic.AppointmentCleaning), apptTypes[0])
	require.Equal(t, string(clinic.AppointmentCheckup), apptTypes[1])
}

func TestExpandPlanFixedType(t *testing.T) {
	plan := Plan{AppointmentType: clinic.AppointmentEmergency, SlotTypes: []clinic.SlotType{clinic.Slot1}}
	_, dates, apptTypes := expandPlan(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), plan)

	require.Len(t, dates, 30)
	for _, at := range apptTypes {
		require.Equal(t, string(clinic.AppointmentEmergency), at)
	}
}

func TestGenerateMonthReportsCreatedRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO slots").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 120))

	n, err := NewGenerator(mock).GenerateMonth(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), DefaultPlan())
	require.NoError(t, err)
	require.EqualValues(t, 120, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateMonthRejectsUnknownType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewGenerator(mock).GenerateMonth(context.Background(), time.Now(), Plan{AppointmentType: "WHITENING"})
	require.ErrorIs(t, err, clinic.ErrValidation)
}

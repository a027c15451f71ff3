package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/appointment"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

// =========== Stub services ===========

type stubAppointments struct {
	schedule   func(appointment.ScheduleRequest) (*appointment.ScheduleResult, error)
	bulk       func([]appointment.BulkItem) ([]appointment.BulkResult, error)
	cancel     func(appointment.CancelRequest) (*appointment.Appointment, error)
	reschedule func(appointment.RescheduleRequest) (*appointment.Appointment, error)
	list       func(appointment.Filter) ([]appointment.Appointment, error)
}

func (s *stubAppointments) Schedule(_ context.Context, req appointment.ScheduleRequest) (*appointment.ScheduleResult, error) {
	return s.schedule(req)
}

func (s *stubAppointments) BulkSchedule(_ context.Context, items []appointment.BulkItem) ([]appointment.BulkResult, error) {
	return s.bulk(items)
}

func (s *stubAppointments) Cancel(_ context.Context, req appointment.CancelRequest) (*appointment.Appointment, error) {
	return s.cancel(req)
}

func (s *stubAppointments) AdminCancel(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return &appointment.Appointment{ID: id, Status: appointment.StatusCancelled}, nil
}

func (s *stubAppointments) Reschedule(_ context.Context, req appointment.RescheduleRequest) (*appointment.Appointment, error) {
	return s.reschedule(req)
}

func (s *stubAppointments) CompleteAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return &appointment.Appointment{ID: id, Status: appointment.StatusCompleted}, nil
}

func (s *stubAppointments) GetAppointment(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return nil, fmt.Errorf("appointment %s: %w", id, appointment.ErrAppointmentNotFound)
}

func (s *stubAppointments) GetAppointments(_ context.Context, f appointment.Filter) ([]appointment.Appointment, error) {
	return s.list(f)
}

func (s *stubAppointments) UpcomingForPatient(_ context.Context, patientID uuid.UUID, _ int) ([]appointment.Appointment, error) {
	return []appointment.Appointment{{ID: uuid.New(), PatientID: patientID, Status: appointment.StatusScheduled}}, nil
}

type stubSlots struct {
	got slot.Query
}

func (s *stubSlots) FindAvailable(_ context.Context, q slot.Query) ([]slot.Slot, error) {
	s.got = q
	return []slot.Slot{{ID: uuid.New(), SlotType: clinic.Slot1, AppointmentType: clinic.AppointmentCheckup, Date: q.From, Available: true}}, nil
}

type stubBilling struct{}

func (stubBilling) Get(_ context.Context, id uuid.UUID) (*billing.Entry, error) {
	return &billing.Entry{ID: id, Amount: 10000, Status: billing.StatusSuccess}, nil
}

func (stubBilling) Refund(_ context.Context, id uuid.UUID) (*billing.Entry, error) {
	return nil, fmt.Errorf("load billing %s: %w", id, billing.ErrRefundOfRefund)
}

type stubNotifications struct{}

func (stubNotifications) List(_ context.Context, dest clinic.DestinationType, _ int) ([]notify.Notification, error) {
	return []notify.Notification{notify.Admin(clinic.UrgencyLow, "feed for %s", dest)}, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRouter(svc *stubAppointments, slots *stubSlots) http.Handler {
	return NewRouter(RouterConfig{
		Appointments:  svc,
		Slots:         slots,
		Billing:       stubBilling{},
		Notifications: stubNotifications{},
		Pricing:       clinic.DefaultPricing(),
		Health:        NewHealthHandler(nil, nil, "test", "v0"),
		Logger:        zerolog.Nop(),
		Now:           func() time.Time { return fixedNow },
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =========== Tests ===========

func TestScheduleAppointment(t *testing.T) {
	patientID, slotID, apptID := uuid.New(), uuid.New(), uuid.New()
	var got appointment.ScheduleRequest
	svc := &stubAppointments{schedule: func(req appointment.ScheduleRequest) (*appointment.ScheduleResult, error) {
		got = req
		return &appointment.ScheduleResult{
			Appointments: []appointment.Appointment{{ID: apptID, PatientID: patientID, Status: appointment.StatusScheduled, Amount: 20000}},
			Billing:      &billing.Entry{ID: uuid.New(), Amount: 20000, Status: billing.StatusSuccess},
			Total:        20000,
		}, nil
	}}

	rec := do(t, newTestRouter(svc, &stubSlots{}), http.MethodPost, "/appointments", ScheduleAppointmentRequest{
		SlotIDs:     []string{slotID.String()},
		PatientID:   patientID.String(),
		PaymentMode: "cash",
		Attempt:     2,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, clinic.PaymentCash, got.PaymentMode)
	require.Equal(t, []uuid.UUID{slotID}, got.SlotIDs)
	require.Equal(t, 2, got.Attempt)

	var resp ScheduleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "$200.00", resp.TotalFormatted)
	require.Len(t, resp.Appointments, 1)
	require.Equal(t, apptID, resp.Appointments[0].ID)
	require.NotNil(t, resp.Billing)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestScheduleReplayReturnsOK(t *testing.T) {
	svc := &stubAppointments{schedule: func(appointment.ScheduleRequest) (*appointment.ScheduleResult, error) {
		return &appointment.ScheduleResult{Replayed: true}, nil
	}}
	rec := do(t, newTestRouter(svc, &stubSlots{}), http.MethodPost, "/appointments", ScheduleAppointmentRequest{
		SlotIDs: []string{uuid.NewString()}, PatientID: uuid.NewString(), PaymentMode: "CASH",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScheduleRejectsMalformedInput(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubSlots{})

	rec := do(t, h, http.MethodPost, "/appointments", ScheduleAppointmentRequest{SlotIDs: []string{"nope"}, PatientID: uuid.NewString()})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/appointments", map[string]any{"unknown": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{fmt.Errorf("slot x: %w", slot.ErrSlotUnavailable), http.StatusConflict, "CONFLICT"},
		{appointment.ErrNotOwner, http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: taken", appointment.ErrNewSlotUnavailable), http.StatusBadRequest, "BAD_REQUEST"},
		{clinic.Errorf(clinic.KindValidation, "missing vital info"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{billing.ErrGatewayFailed, http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{appointment.ErrAppointmentNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			svc := &stubAppointments{cancel: func(appointment.CancelRequest) (*appointment.Appointment, error) {
				return nil, tc.err
			}}
			rec := do(t, newTestRouter(svc, &stubSlots{}), http.MethodPost,
				"/appointments/"+uuid.NewString()+"/cancel", CancelAppointmentRequest{PatientID: uuid.NewString()})
			require.Equal(t, tc.code, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Equal(t, tc.kind, resp.Error)
		})
	}
}

func TestRescheduleAppointment(t *testing.T) {
	apptID, patientID, newSlot := uuid.New(), uuid.New(), uuid.New()
	svc := &stubAppointments{reschedule: func(req appointment.RescheduleRequest) (*appointment.Appointment, error) {
		require.Equal(t, apptID, req.AppointmentID)
		require.Equal(t, newSlot, req.NewSlotID)
		return &appointment.Appointment{ID: apptID, PatientID: patientID, Status: appointment.StatusRescheduled}, nil
	}}

	rec := do(t, newTestRouter(svc, &stubSlots{}), http.MethodPost, "/appointments/"+apptID.String()+"/reschedule",
		RescheduleAppointmentRequest{PatientID: patientID.String(), NewSlotID: newSlot.String()})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RESCHEDULED", resp.Status)
}

func TestBulkSchedule(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	svc := &stubAppointments{bulk: func(items []appointment.BulkItem) ([]appointment.BulkResult, error) {
		require.Len(t, items, 2)
		id := uuid.New()
		return []appointment.BulkResult{
			{PatientID: items[0].PatientID, SlotID: items[0].SlotID, Success: true, AppointmentID: &id},
			{PatientID: items[1].PatientID, SlotID: items[1].SlotID, ErrorMsg: "slot is not available", ErrorKind: clinic.KindConflict},
		}, nil
	}}

	rec := do(t, newTestRouter(svc, &stubSlots{}), http.MethodPost, "/appointments/bulk", BulkScheduleRequest{Items: []BulkScheduleItem{
		{SlotID: uuid.NewString(), PatientID: a.String(), PaymentMode: "CASH"},
		{SlotID: uuid.NewString(), PatientID: b.String(), PaymentMode: "CASH"},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []BulkResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp[0].Success)
	require.False(t, resp[1].Success)
	require.Equal(t, "CONFLICT", resp[1].ErrorKind)
}

func TestListAppointmentsParsesFilter(t *testing.T) {
	patientID := uuid.New()
	var got appointment.Filter
	svc := &stubAppointments{list: func(f appointment.Filter) ([]appointment.Appointment, error) {
		got = f
		return nil, nil
	}}
	h := newTestRouter(svc, &stubSlots{})

	rec := do(t, h, http.MethodGet, "/appointments?patientId="+patientID.String()+"&status=scheduled&date=2026-03-10&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
	require.Equal(t, patientID, got.PatientID)
	require.Equal(t, appointment.StatusScheduled, got.Status)
	require.Equal(t, 5, got.Limit)
	require.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), *got.Day)

	rec = do(t, h, http.MethodGet, "/appointments?patientId="+patientID.String()+"&status=lost", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/appointments?patientId="+patientID.String()+"&limit=500", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSlotsDefaultsToNextWeek(t *testing.T) {
	slots := &stubSlots{}
	rec := do(t, newTestRouter(&stubAppointments{}, slots), http.MethodGet, "/slots?appointmentType=checkup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, clinic.StartOfDayUTC(fixedNow), slots.got.From)
	require.Equal(t, clinic.StartOfDayUTC(fixedNow).AddDate(0, 0, 7), slots.got.To)
	require.Equal(t, clinic.AppointmentCheckup, slots.got.AppointmentType)

	var resp []SlotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 20000, resp[0].Price)
}

func TestBillingAndAdminRoutes(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubSlots{})

	rec := do(t, h, http.MethodGet, "/billing/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/billing/"+uuid.NewString()+"/refund", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/admin/appointments/"+uuid.NewString()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ADMIN_PANEL")

	rec = do(t, h, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/patients/"+uuid.NewString()+"/appointments/upcoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInfoRoutes(t *testing.T) {
	h := newTestRouter(&stubAppointments{}, &stubSlots{})

	rec := do(t, h, http.MethodGet, "/info/payment-methods", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var methods []InfoItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &methods))
	require.Len(t, methods, 4)
	require.Equal(t, InfoItem{ID: "CASH", Name: "CASH"}, methods[0])
	require.NotContains(t, rec.Body.String(), "price")

	rec = do(t, h, http.MethodGet, "/info/insurance-providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var providers []InfoItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &providers))
	require.Len(t, providers, 6)
	require.Equal(t, "DELTA_DENTAL", providers[1].ID)

	rec = do(t, h, http.MethodGet, "/info/appointment-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var types []InfoItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	require.Len(t, types, 4)
	require.Equal(t, "CLEANING", types[0].ID)
	require.NotNil(t, types[0].Price)
	require.EqualValues(t, 10000, *types[0].Price)
	require.Equal(t, "ROOT_CANAL", types[3].ID)
	require.EqualValues(t, 40000, *types[3].Price)
}

func TestReadiness(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	rec := httptest.NewRecorder()
	NewHealthHandler(up, down, "test", "v0").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"degraded"`)

	rec = httptest.NewRecorder()
	NewHealthHandler(down, up, "test", "v0").Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RequestIDMiddleware(RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/appointment"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

// AppointmentService is satisfied by *appointment.Service.
type AppointmentService interface {
	Schedule(ctx context.Context, req appointment.ScheduleRequest) (*appointment.ScheduleResult, error)
	BulkSchedule(ctx context.Context, items []appointment.BulkItem) ([]appointment.BulkResult, error)
	Cancel(ctx context.Context, req appointment.CancelRequest) (*appointment.Appointment, error)
	AdminCancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointments(ctx context.Context, f appointment.Filter) ([]appointment.Appointment, error)
	UpcomingForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]appointment.Appointment, error)
}

func scheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slotIDs := make([]uuid.UUID, 0, len(req.SlotIDs))
		for _, raw := range req.SlotIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotIds must be valid UUIDs")
				return
			}
			slotIDs = append(slotIDs, id)
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		res, err := svc.Schedule(r.Context(), appointment.ScheduleRequest{
			SlotIDs:     slotIDs,
			PatientID:   patientID,
			PaymentMode: clinic.PaymentMode(strings.ToUpper(req.PaymentMode)),
			Attempt:     req.Attempt,
			Notes:       req.Notes,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, ScheduleResponse{
			Appointments:   toAppointmentResponses(res.Appointments),
			Billing:        toBillingResponse(res.Billing),
			Total:          res.Total,
			TotalFormatted: clinic.FormatCents(res.Total),
			Replayed:       res.Replayed,
		})
	}
}

func bulkScheduleHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		items := make([]appointment.BulkItem, len(req.Items))
		for i, it := range req.Items {
			slotID, err := uuid.Parse(it.SlotID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "items["+strconv.Itoa(i)+"].slotId must be a valid UUID")
				return
			}
			patientID, err := uuid.Parse(it.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "items["+strconv.Itoa(i)+"].patientId must be a valid UUID")
				return
			}
			items[i] = appointment.BulkItem{
				SlotID:      slotID,
				PatientID:   patientID,
				PaymentMode: clinic.PaymentMode(strings.ToUpper(it.PaymentMode)),
				Attempt:     it.Attempt,
			}
		}

		results, err := svc.BulkSchedule(r.Context(), items)
		if err != nil {
			handleError(w, r, err)
			return
		}

		out := make([]BulkResultResponse, len(results))
		for i, res := range results {
			out[i] = BulkResultResponse{
				PatientID:     res.PatientID,
				SlotID:        res.SlotID,
				Success:       res.Success,
				AppointmentID: res.AppointmentID,
				Error:         res.ErrorMsg,
				ErrorKind:     string(res.ErrorKind),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req CancelAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), appointment.CancelRequest{AppointmentID: id, PatientID: patientID})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}
		newSlotID, err := uuid.Parse(req.NewSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "newSlotId must be a valid UUID")
			return
		}

		appt, err := svc.Reschedule(r.Context(), appointment.RescheduleRequest{
			AppointmentID: id,
			PatientID:     patientID,
			NewSlotID:     newSlotID,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.CompleteAppointment(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// listAppointmentsHandler serves GET /appointments?patientId=&status=&date=&slotType=&appointmentType=&ids=&limit=
func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		patientID, err := uuid.Parse(q.Get("patientId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
			return
		}
		f := appointment.Filter{
			PatientID:       patientID,
			SlotType:        clinic.SlotType(q.Get("slotType")),
			AppointmentType: clinic.AppointmentType(q.Get("appointmentType")),
		}

		if raw := q.Get("status"); raw != "" {
			status, err := appointment.ParseStatus(strings.ToUpper(raw))
			if err != nil {
				handleError(w, r, err)
				return
			}
			f.Status = status
		}
		if raw := q.Get("date"); raw != "" {
			day, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			f.Day = &day
		}
		if raw := q.Get("ids"); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				id, err := uuid.Parse(strings.TrimSpace(part))
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_appointment_id", "ids must be comma separated UUIDs")
					return
				}
				f.IDs = append(f.IDs, id)
			}
		}
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}
		f.Limit = limit

		list, err := svc.GetAppointments(r.Context(), f)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func upcomingAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}

		list, err := svc.UpcomingForPatient(r.Context(), patientID, limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(list))
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 100 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 0 and 100")
		return 0, false
	}
	return n, true
}

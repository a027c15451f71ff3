package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

type SlotFinder interface {
	FindAvailable(ctx context.Context, q slot.Query) ([]slot.Slot, error)
}

type BillingService interface {
	Get(ctx context.Context, id uuid.UUID) (*billing.Entry, error)
	Refund(ctx context.Context, billingID uuid.UUID) (*billing.Entry, error)
}

type NotificationLister interface {
	List(ctx context.Context, dest clinic.DestinationType, limit int) ([]notify.Notification, error)
}

// listSlotsHandler serves GET /slots?from=YYYY-MM-DD&to=YYYY-MM-DD&appointmentType=&limit=
// Without a range it lists the next seven days.
func listSlotsHandler(finder SlotFinder, pricing clinic.PricingTable, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		from := clinic.StartOfDayUTC(now())
		if raw := q.Get("from"); raw != "" {
			d, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "from must be YYYY-MM-DD")
				return
			}
			from = d
		}
		to := from.AddDate(0, 0, 7)
		if raw := q.Get("to"); raw != "" {
			d, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "to must be YYYY-MM-DD")
				return
			}
			to = d
		}

		query := slot.Query{From: from, To: to}
		if raw := q.Get("appointmentType"); raw != "" {
			t, err := clinic.ParseAppointmentType(strings.ToUpper(raw))
			if err != nil {
				handleError(w, r, err)
				return
			}
			query.AppointmentType = t
		}
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}
		query.Limit = limit

		slots, err := finder.FindAvailable(r.Context(), query)
		if err != nil {
			handleError(w, r, err)
			return
		}

		out := make([]SlotResponse, len(slots))
		for i, s := range slots {
			out[i] = toSlotResponse(s, pricing)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getBillingHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		entry, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBillingResponse(entry))
	}
}

func refundBillingHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		entry, err := svc.Refund(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBillingResponse(entry))
	}
}

func adminCancelHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.AdminCancel(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

// adminNotificationsHandler is the admin panel feed.
func adminNotificationsHandler(lister NotificationLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dest := clinic.DestinationAdminPanel
		if raw := r.URL.Query().Get("destination"); raw != "" {
			dest = clinic.DestinationType(strings.ToUpper(raw))
		}
		limit, ok := queryLimit(w, r)
		if !ok {
			return
		}

		list, err := lister.List(r.Context(), dest, limit)
		if err != nil {
			handleError(w, r, err)
			return
		}
		if list == nil {
			list = []notify.Notification{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

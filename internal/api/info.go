package api

import (
	"net/http"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

func paymentMethodsHandler(w http.ResponseWriter, _ *http.Request) {
	items := make([]InfoItem, 0, len(clinic.PaymentModes))
	for _, m := range clinic.PaymentModes {
		items = append(items, InfoItem{ID: string(m), Name: string(m)})
	}
	writeJSON(w, http.StatusOK, items)
}

func insuranceProvidersHandler(w http.ResponseWriter, _ *http.Request) {
	items := make([]InfoItem, 0, len(clinic.InsuranceNames))
	for _, n := range clinic.InsuranceNames {
		items = append(items, InfoItem{ID: string(n), Name: string(n)})
	}
	writeJSON(w, http.StatusOK, items)
}

// appointmentTypesHandler lists every appointment type with its configured
// price in cents.
func appointmentTypesHandler(pricing clinic.PricingTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := make([]InfoItem, 0, len(clinic.AppointmentTypes))
		for _, t := range clinic.AppointmentTypes {
			price, err := pricing.Price(t)
			if err != nil {
				handleError(w, r, err)
				return
			}
			items = append(items, InfoItem{ID: string(t), Name: string(t), Price: &price})
		}
		writeJSON(w, http.StatusOK, items)
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

type RouterConfig struct {
	Appointments  AppointmentService
	Slots         SlotFinder
	Billing       BillingService
	Notifications NotificationLister
	Pricing       clinic.PricingTable
	Health        *HealthHandler
	Metrics       http.Handler
	Logger        zerolog.Logger
	Now           func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", scheduleAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))
		r.Post("/bulk", bulkScheduleHandler(cfg.Appointments))
		r.Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
		r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
	})
	r.Get("/patients/{id}/appointments/upcoming", upcomingAppointmentsHandler(cfg.Appointments))

	if cfg.Slots != nil {
		r.Get("/slots", listSlotsHandler(cfg.Slots, cfg.Pricing, cfg.Now))
	}

	// Reference data for booking forms
	r.Route("/info", func(r chi.Router) {
		r.Get("/payment-methods", paymentMethodsHandler)
		r.Get("/insurance-providers", insuranceProvidersHandler)
		r.Get("/appointment-types", appointmentTypesHandler(cfg.Pricing))
	})

	if cfg.Billing != nil {
		r.Get("/billing/{id}", getBillingHandler(cfg.Billing))
		r.Post("/billing/{id}/refund", refundBillingHandler(cfg.Billing))
	}

	// Admin panel
	r.Route("/admin", func(r chi.Router) {
		r.Post("/appointments/{id}/cancel", adminCancelHandler(cfg.Appointments))
		if cfg.Notifications != nil {
			r.Get("/notifications", adminNotificationsHandler(cfg.Notifications))
		}
	})

	return r
}

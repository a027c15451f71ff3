package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/appointment"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

type ScheduleAppointmentRequest struct {
	SlotIDs     []string `json:"slotIds"`
	PatientID   string   `json:"patientId"`
	PaymentMode string   `json:"paymentMode"`
	Attempt     int      `json:"attempt"`
	Notes       string   `json:"notes"`
}

type BulkScheduleRequest struct {
	Items []BulkScheduleItem `json:"items"`
}

type BulkScheduleItem struct {
	SlotID      string `json:"slotId"`
	PatientID   string `json:"patientId"`
	PaymentMode string `json:"paymentMode"`
	Attempt     int    `json:"attempt"`
}

type CancelAppointmentRequest struct {
	PatientID string `json:"patientId"`
}

type RescheduleAppointmentRequest struct {
	PatientID string `json:"patientId"`
	NewSlotID string `json:"newSlotId"`
}

type AppointmentResponse struct {
	ID              uuid.UUID              `json:"id"`
	PatientID       uuid.UUID              `json:"patientId"`
	Status          string                 `json:"status"`
	Timing          time.Time              `json:"timing"`
	SlotType        clinic.SlotType        `json:"slotType"`
	AppointmentType clinic.AppointmentType `json:"appointmentType"`
	PaymentMode     clinic.PaymentMode     `json:"paymentMode"`
	Amount          int64                  `json:"amount"`
	Notes           *string                `json:"notes,omitempty"`
	ExpiresAt       *time.Time             `json:"expiresAt,omitempty"`
}

type BillingResponse struct {
	ID             uuid.UUID          `json:"id"`
	PatientID      uuid.UUID          `json:"patientId"`
	AppointmentIDs []uuid.UUID        `json:"appointmentIds"`
	Amount         int64              `json:"amount"`
	PaymentMode    clinic.PaymentMode `json:"paymentMode"`
	Status         string             `json:"status"`
	IsRefund       bool               `json:"isRefund"`
	Notes          *string            `json:"notes,omitempty"`
	GatewayRef     *string            `json:"gatewayRef,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

type ScheduleResponse struct {
	Appointments   []AppointmentResponse `json:"appointments"`
	Billing        *BillingResponse      `json:"billing,omitempty"`
	Total          int64                 `json:"total"`
	TotalFormatted string                `json:"totalFormatted"`
	Replayed       bool                  `json:"replayed"`
}

type BulkResultResponse struct {
	PatientID     uuid.UUID  `json:"patientId"`
	SlotID        uuid.UUID  `json:"slotId"`
	Success       bool       `json:"success"`
	AppointmentID *uuid.UUID `json:"appointmentId,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorKind     string     `json:"errorKind,omitempty"`
}

type SlotResponse struct {
	ID              uuid.UUID              `json:"id"`
	SlotType        clinic.SlotType        `json:"slotType"`
	Date            time.Time              `json:"date"`
	AppointmentType clinic.AppointmentType `json:"appointmentType"`
	Price           int64                  `json:"price"`
}

// InfoItem is one entry of the /info reference lists. Price is set for
// appointment types only.
type InfoItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price *int64 `json:"price,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		Status:          string(a.Status),
		Timing:          a.Timing,
		SlotType:        a.SlotType,
		AppointmentType: a.AppointmentType,
		PaymentMode:     a.PaymentMode,
		Amount:          a.Amount,
		Notes:           a.Notes,
		ExpiresAt:       a.ExpiresAt,
	}
}

func toAppointmentResponses(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, len(list))
	for i, a := range list {
		out[i] = toAppointmentResponse(a)
	}
	return out
}

func toBillingResponse(e *billing.Entry) *BillingResponse {
	if e == nil {
		return nil
	}
	return &BillingResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		AppointmentIDs: e.AppointmentIDs,
		Amount:         e.Amount,
		PaymentMode:    e.PaymentMode,
		Status:         string(e.Status),
		IsRefund:       e.IsRefund,
		Notes:          e.Notes,
		GatewayRef:     e.GatewayRef,
		CreatedAt:      e.CreatedAt,
	}
}

func toSlotResponse(s slot.Slot, pricing clinic.PricingTable) SlotResponse {
	price, _ := pricing.Price(s.AppointmentType)
	return SlotResponse{
		ID:              s.ID,
		SlotType:        s.SlotType,
		Date:            s.Date,
		AppointmentType: s.AppointmentType,
		Price:           price,
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
)

type Destination struct {
	Type    clinic.DestinationType `json:"type"`
	Address string                 `json:"address,omitempty"`
}

type Notification struct {
	ID          uuid.UUID       `json:"id"`
	UserType    clinic.UserType `json:"userType"`
	UserID      *uuid.UUID      `json:"userId,omitempty"`
	Message     string          `json:"message"`
	Urgency     clinic.Urgency  `json:"urgency"`
	Destination Destination     `json:"destination"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Validate checks the notification can be delivered: SMS and EMAIL need an address.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.Message) == "" {
		return clinic.Errorf(clinic.KindValidation, "notification message is empty")
	}
	switch n.Destination.Type {
	case clinic.DestinationSMS, clinic.DestinationEmail:
		if n.Destination.Address == "" {
			return clinic.Errorf(clinic.KindValidation, "%s notification needs an address", n.Destination.Type)
		}
	case clinic.DestinationAdminPanel:
	default:
		return clinic.Errorf(clinic.KindValidation, "unknown destination type %q", n.Destination.Type)
	}
	return nil
}

// Dispatcher delivers a notification. Callers in the workflow treat failures as non-fatal.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// Patient builds an SMS notification for a patient.
func Patient(patientID uuid.UUID, phone string, urgency clinic.Urgency, format string, args ...any) Notification {
	id := patientID
	return Notification{
		UserType:    clinic.UserPatient,
		UserID:      &id,
		Message:     fmt.Sprintf(format, args...),
		Urgency:     urgency,
		Destination: Destination{Type: clinic.DestinationSMS, Address: phone},
	}
}

// Admin builds an admin panel notification.
func Admin(urgency clinic.Urgency, format string, args ...any) Notification {
	return Notification{
		UserType:    clinic.UserAdmin,
		Message:     fmt.Sprintf(format, args...),
		Urgency:     urgency,
		Destination: Destination{Type: clinic.DestinationAdminPanel},
	}
}

// Multi fans a notification out to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Route sends a notification to the dispatcher registered for its destination
// type, falling back to Default.
type Route struct {
	ByDestination map[clinic.DestinationType]Dispatcher
	Default       Dispatcher
}

func (r Route) Notify(ctx context.Context, n Notification) error {
	if d, ok := r.ByDestination[n.Destination.Type]; ok && d != nil {
		return d.Notify(ctx, n)
	}
	if r.Default == nil {
		return nil
	}
	return r.Default.Notify(ctx, n)
}

package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

// Cancel frees the slot, refunds the appointment's share of its charge and
// marks it CANCELLED. Only the owning patient may cancel.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Appointment, error) {
	var cancelled *Appointment
	err := s.withAppointmentLock(ctx, req.AppointmentID, func(ctx context.Context) error {
		appt, err := s.loadOwned(ctx, req.AppointmentID, req.PatientID)
		if err != nil {
			return err
		}
		cancelled, err = s.cancel(ctx, appt, "patient")
		return err
	})
	s.metrics.ObserveWorkflow("cancel", outcome(err))
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// AdminCancel cancels on the clinic's behalf and skips the ownership check.
func (s *Service) AdminCancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var cancelled *Appointment
	err := s.withAppointmentLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		cancelled, err = s.cancel(ctx, appt, "admin")
		return err
	})
	s.metrics.ObserveWorkflow("admin_cancel", outcome(err))
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Service) cancel(ctx context.Context, appt *Appointment, actor string) (*Appointment, error) {
	if !appt.Status.CanTransitionTo(StatusCancelled) {
		return nil, fmt.Errorf("cancel appointment in status %s: %w", appt.Status, ErrInvalidStatusTransition)
	}

	p, err := s.patients.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return nil, err
	}
	payer := s.payer(ctx, p)

	released, err := s.slots.Release(ctx, appt.ID)
	if err != nil && !errors.Is(err, slot.ErrNothingToRelease) {
		return nil, err
	}

	var refund *billing.Entry
	if appt.Amount > 0 {
		refund, err = s.ledger.RefundAppointment(ctx, billing.RefundRequest{
			Payer:         payer,
			AppointmentID: appt.ID,
			Amount:        appt.Amount,
			PaymentMode:   clinic.PaymentCredit,
			Notes:         fmt.Sprintf("Refund for cancelled appointment %s", appt.ID),
		})
		switch {
		case errors.Is(err, billing.ErrBillingNotFound):
			s.log.Warn().Str("appointment_id", appt.ID.String()).Msg("no charge found to refund")
		case err != nil:
			s.rebind(ctx, released, appt.ID)
			return nil, fmt.Errorf("refund appointment: %w", err)
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, activeStatuses, StatusCancelled)
	if err != nil {
		payload := map[string]any{"error": err.Error(), "step": "cancel"}
		if refund != nil {
			payload["refund_id"] = refund.ID
		}
		s.logEvent(ctx, appt.ID, EventAppointmentOrphaned, payload)
		return nil, err
	}

	payload := map[string]any{"actor": actor}
	if refund != nil {
		payload["refund_id"] = refund.ID
	}
	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, payload)

	when := describeTiming(appt.Timing)
	s.notifyPatient(ctx, payer, clinic.UrgencyMedium,
		"Your %s appointment on %s has been cancelled.", appt.AppointmentType, when)
	s.send(ctx, notify.Admin(clinic.UrgencyMedium,
		"%s appointment for %s on %s was cancelled by %s.", appt.AppointmentType, payer.Name, when, actor))

	return updated, nil
}

// Reschedule moves the appointment to another slot in place. The old slot is
// released only once the new one is bound, otherwise it is restored.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	if req.NewSlotID == uuid.Nil {
		err := clinic.Errorf(clinic.KindValidation, "newSlotId is required")
		s.metrics.ObserveWorkflow("reschedule", outcome(err))
		return nil, err
	}

	var moved *Appointment
	err := s.withAppointmentLock(ctx, req.AppointmentID, func(ctx context.Context) error {
		var err error
		moved, err = s.reschedule(ctx, req)
		return err
	})
	s.metrics.ObserveWorkflow("reschedule", outcome(err))
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (s *Service) reschedule(ctx context.Context, req RescheduleRequest) (*Appointment, error) {
	appt, err := s.loadOwned(ctx, req.AppointmentID, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusRescheduled) {
		return nil, fmt.Errorf("reschedule appointment in status %s: %w", appt.Status, ErrInvalidStatusTransition)
	}

	reservations, err := s.slots.AreAllAvailable(ctx, []uuid.UUID{req.NewSlotID})
	if err != nil {
		if errors.Is(err, clinic.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrNewSlotUnavailable, err)
		}
		return nil, err
	}
	target := reservations[0]

	price, err := s.cfg.Pricing.Price(target.AppointmentType)
	if err != nil {
		return nil, err
	}
	timing, err := s.cfg.SlotClock.Timing(target.Date, target.SlotType)
	if err != nil {
		return nil, err
	}

	old, err := s.slots.Release(ctx, appt.ID)
	if err != nil && !errors.Is(err, slot.ErrNothingToRelease) {
		return nil, err
	}
	if _, err := s.slots.BindToAppointment(ctx, req.NewSlotID, appt.ID); err != nil {
		s.rebind(ctx, old, appt.ID)
		if errors.Is(err, clinic.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrNewSlotUnavailable, err)
		}
		return nil, err
	}

	// The stored amount is what the patient paid unless the difference is settled now.
	amount := appt.Amount
	if s.cfg.RescheduleAdjustsBilling {
		amount = price
	}

	updated, err := s.repo.ApplyReschedule(ctx, appt.ID, activeStatuses, Change{
		Timing:          timing,
		SlotType:        target.SlotType,
		AppointmentType: target.AppointmentType,
		Amount:          amount,
	})
	if err != nil {
		if _, relErr := s.slots.Release(ctx, appt.ID); relErr != nil {
			s.log.Error().Err(relErr).Str("appointment_id", appt.ID.String()).Msg("failed to release new slot")
		}
		s.rebind(ctx, old, appt.ID)
		return nil, err
	}

	payload := map[string]any{
		"new_slot_id": req.NewSlotID,
		"from":        appt.Timing,
		"to":          timing,
	}
	if old != nil {
		payload["old_slot_id"] = old.ID
	}
	s.logEvent(ctx, appt.ID, EventAppointmentRescheduled, payload)

	p, err := s.patients.GetPatient(ctx, appt.PatientID)
	if err != nil {
		s.log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("rescheduled without notifying patient")
		return updated, nil
	}
	payer := s.payer(ctx, p)

	if s.cfg.RescheduleAdjustsBilling && price != appt.Amount {
		s.adjustBilling(ctx, payer, updated, price-appt.Amount)
	}

	from, to := describeTiming(appt.Timing), describeTiming(timing)
	s.notifyPatient(ctx, payer, clinic.UrgencyHigh,
		"Your %s appointment has moved from %s to %s.", updated.AppointmentType, from, to)
	s.send(ctx, notify.Admin(clinic.UrgencyMedium,
		"%s rescheduled from %s to %s.", payer.Name, from, to))

	return updated, nil
}

// adjustBilling settles a price difference after a reschedule. The reschedule
// itself has already happened, so a failure is recorded rather than returned.
func (s *Service) adjustBilling(ctx context.Context, payer billing.Payer, appt *Appointment, difference int64) {
	_, err := s.ledger.AdjustArrears(ctx, billing.AdjustRequest{
		Payer:         payer,
		AppointmentID: appt.ID,
		Difference:    difference,
		PaymentMode:   appt.PaymentMode,
		Notes:         fmt.Sprintf("Price adjustment for rescheduled appointment %s", appt.ID),
	})
	if err != nil {
		s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Int64("difference", difference).Msg("billing adjustment failed")
		s.logEvent(ctx, appt.ID, EventBillingAdjustFailed, map[string]any{
			"difference": difference,
			"error":      err.Error(),
		})
	}
}

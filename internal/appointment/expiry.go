package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

// ExpirePendingAppointments releases the slots held by PENDING appointments
// whose hold has lapsed, refunds any charge they already took and marks them
// EXPIRED. One failing appointment does not stop the sweep.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, appt := range candidates {
		if err := ctx.Err(); err != nil {
			s.metrics.AddExpired(expired)
			return expired, err
		}
		if err := s.expireOne(ctx, appt); err != nil {
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}
		expired++
	}

	s.metrics.AddExpired(expired)
	if len(candidates) > 0 {
		s.log.Info().Int("candidates", len(candidates)).Int("expired", expired).Msg("expiry sweep finished")
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, appt Appointment) error {
	return s.withAppointmentLock(ctx, appt.ID, func(ctx context.Context) error {
		// The status flip decides the race with a confirming Schedule.
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, []Status{StatusPending}, StatusExpired); err != nil {
			if errors.Is(err, ErrInvalidStatusTransition) {
				return nil
			}
			return err
		}
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{"reason": "hold_lapsed"})

		if err := s.settleExpired(ctx, appt); err != nil {
			s.logEvent(ctx, appt.ID, EventAppointmentOrphaned, map[string]any{"error": err.Error(), "stage": "expiry"})
			return err
		}
		return nil
	})
}

// settleLapsedHold finishes an appointment whose hold was expired by the sweep
// while its booking was still charging. It reports whether the appointment
// turned out to be EXPIRED and was released and refunded.
func (s *Service) settleLapsedHold(ctx context.Context, id uuid.UUID) (bool, error) {
	settled := false
	err := s.withAppointmentLockRetry(ctx, id, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusExpired {
			return nil
		}
		if err := s.settleExpired(ctx, *appt); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("settle lapsed hold: %w", err)
	}
	if settled {
		s.log.Warn().Str("appointment_id", id.String()).Msg("hold lapsed during payment, charge refunded")
	}
	return settled, nil
}

func (s *Service) settleExpired(ctx context.Context, appt Appointment) error {
	if _, err := s.slots.Release(ctx, appt.ID); err != nil && !errors.Is(err, slot.ErrNothingToRelease) {
		return fmt.Errorf("release slot: %w", err)
	}
	return s.refundIfCharged(ctx, appt)
}

func (s *Service) refundIfCharged(ctx context.Context, appt Appointment) error {
	entries, err := s.ledger.ChargesForAppointment(ctx, appt.ID)
	if err != nil {
		return err
	}

	var charged, refunded bool
	for _, e := range entries {
		if e.Status != billing.StatusSuccess {
			continue
		}
		if !e.IsRefund {
			charged = true
		} else if len(e.AppointmentIDs) == 1 {
			refunded = true
		}
	}
	if !charged || refunded || appt.Amount <= 0 {
		return nil
	}

	p, err := s.patients.GetPatient(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	_, err = s.ledger.RefundAppointment(ctx, billing.RefundRequest{
		Payer:         s.payer(ctx, p),
		AppointmentID: appt.ID,
		Amount:        appt.Amount,
		PaymentMode:   clinic.PaymentCredit,
		Notes:         fmt.Sprintf("Refund for expired appointment %s", appt.ID),
	})
	if err != nil {
		return fmt.Errorf("refund expired appointment: %w", err)
	}
	return nil
}

package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

func (r ScheduleRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return clinic.Errorf(clinic.KindValidation, "patientId is required")
	}
	if len(r.SlotIDs) == 0 {
		return slot.ErrNoSlotsRequested
	}
	seen := make(map[uuid.UUID]struct{}, len(r.SlotIDs))
	for _, id := range r.SlotIDs {
		if id == uuid.Nil {
			return clinic.Errorf(clinic.KindValidation, "slot id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return slot.ErrDuplicateSlotInSet
		}
		seen[id] = struct{}{}
	}
	if _, err := clinic.ParsePaymentMode(string(r.PaymentMode)); err != nil {
		return err
	}
	if r.Attempt < 0 {
		return clinic.Errorf(clinic.KindValidation, "attempt must not be negative")
	}
	return nil
}

// Schedule books every requested slot for the patient and charges the total in
// one billing entry. Either all slots end up SCHEDULED or none stay reserved.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	res, err := s.scheduleLocked(ctx, req)
	s.metrics.ObserveWorkflow("schedule", outcome(err))
	return res, err
}

func (s *Service) scheduleLocked(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p, err := s.checkEligibility(ctx, req.PatientID, req.PaymentMode)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(req.SlotIDs))
	for i, id := range req.SlotIDs {
		keys[i] = BookingKey(req.PatientID, id, req.Attempt)
	}

	var result *ScheduleResult
	err = s.locker.WithKeyLock(ctx, requestKey(keys), func(ctx context.Context) error {
		var err error
		result, err = s.schedule(ctx, req, p, keys)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) checkEligibility(ctx context.Context, patientID uuid.UUID, mode clinic.PaymentMode) (*patient.Patient, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.patients.HasVitalInfo(ctx, patientID); err != nil {
		return nil, err
	}
	if mode == clinic.PaymentInsurance {
		if err := s.patients.HasValidInsurance(ctx, patientID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Service) schedule(ctx context.Context, req ScheduleRequest, p *patient.Patient, keys []string) (*ScheduleResult, error) {
	replayed, err := s.replay(ctx, keys)
	if err != nil || replayed != nil {
		return replayed, err
	}

	reservations, err := s.slots.AreAllAvailable(ctx, req.SlotIDs)
	if err != nil {
		return nil, err
	}

	var notes *string
	if req.Notes != "" {
		notes = &req.Notes
	}
	expiresAt := s.now().Add(s.cfg.AppointmentTTL)

	keyBySlot := make(map[uuid.UUID]string, len(keys))
	for i, id := range req.SlotIDs {
		keyBySlot[id] = keys[i]
	}

	appts := make([]Appointment, 0, len(reservations))
	types := make([]clinic.AppointmentType, 0, len(reservations))
	bindings := make([]slot.Binding, 0, len(reservations))
	for _, r := range reservations {
		price, err := s.cfg.Pricing.Price(r.AppointmentType)
		if err != nil {
			s.expireAll(ctx, appts, "invalid_slot")
			return nil, err
		}
		timing, err := s.cfg.SlotClock.Timing(r.Date, r.SlotType)
		if err != nil {
			s.expireAll(ctx, appts, "invalid_slot")
			return nil, err
		}

		appt, err := s.repo.UpsertPending(ctx, Draft{
			PatientID:       req.PatientID,
			IdempotencyKey:  keyBySlot[r.SlotID],
			Timing:          timing,
			SlotType:        r.SlotType,
			AppointmentType: r.AppointmentType,
			PaymentMode:     req.PaymentMode,
			Amount:          price,
			Notes:           notes,
			ExpiresAt:       expiresAt,
		})
		if err != nil {
			s.expireAll(ctx, appts, "create_failed")
			return nil, err
		}
		if appt.Status != StatusPending {
			s.expireAll(ctx, appts, "attempt_settled")
			return nil, ErrAttemptSettled
		}

		appts = append(appts, *appt)
		types = append(types, r.AppointmentType)
		bindings = append(bindings, slot.Binding{SlotID: r.SlotID, AppointmentID: appt.ID})
		s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id": req.PatientID,
			"slot_id":    r.SlotID,
			"amount":     price,
		})
	}

	if _, err := s.slots.ReserveAll(ctx, bindings); err != nil {
		s.expireAll(ctx, appts, "slot_conflict")
		return nil, err
	}

	total, err := s.cfg.Pricing.Total(types...)
	if err != nil {
		s.releaseAll(ctx, appts)
		s.expireAll(ctx, appts, "pricing_failed")
		return nil, err
	}

	payer := s.payer(ctx, p)
	var entry *billing.Entry
	if total > 0 {
		ids := make([]uuid.UUID, len(appts))
		for i, a := range appts {
			ids[i] = a.ID
		}
		entry, err = s.ledger.Charge(ctx, billing.ChargeRequest{
			Payer:          payer,
			AppointmentIDs: ids,
			Amount:         total,
			PaymentMode:    req.PaymentMode,
			Notes:          req.Notes,
		})
		if err != nil {
			s.releaseAll(ctx, appts)
			s.expireAll(ctx, appts, "payment_failed")
			return nil, fmt.Errorf("charge appointments: %w", err)
		}
	}

	scheduled := make([]Appointment, 0, len(appts))
	orphaned, lapsed := 0, 0
	for _, a := range appts {
		updated, err := s.repo.UpdateStatus(ctx, a.ID, []Status{StatusPending}, StatusScheduled)
		if err != nil {
			if errors.Is(err, ErrInvalidStatusTransition) {
				settled, serr := s.settleLapsedHold(ctx, a.ID)
				if serr == nil && settled {
					lapsed++
					continue
				}
				if serr != nil {
					err = serr
				}
			}
			orphaned++
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("charged appointment could not be scheduled")
			payload := map[string]any{"error": err.Error()}
			if entry != nil {
				payload["billing_id"] = entry.ID
			}
			s.logEvent(ctx, a.ID, EventAppointmentOrphaned, payload)
			continue
		}
		scheduled = append(scheduled, *updated)
		s.logEvent(ctx, a.ID, EventAppointmentScheduled, map[string]any{"patient_id": req.PatientID})
	}
	if orphaned > 0 {
		return nil, fmt.Errorf("%w: %d of %d appointments", ErrOrphanedBooking, orphaned, len(appts))
	}
	if lapsed > 0 {
		return nil, fmt.Errorf("%w: %d of %d appointments", ErrHoldExpired, lapsed, len(appts))
	}

	s.notifyScheduled(ctx, payer, scheduled, total)
	return &ScheduleResult{Appointments: scheduled, Billing: entry, Total: total}, nil
}

// replay returns the earlier outcome when every key of the request already
// produced a SCHEDULED appointment. PENDING leftovers are resumed by the caller.
func (s *Service) replay(ctx context.Context, keys []string) (*ScheduleResult, error) {
	existing, err := s.repo.FindByIdempotencyKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, nil
	}

	byKey := make(map[string]Appointment, len(existing))
	settled := 0
	for _, a := range existing {
		byKey[a.IdempotencyKey] = a
		if a.Status != StatusPending {
			settled++
		}
	}
	if settled == 0 {
		return nil, nil
	}

	result := &ScheduleResult{Replayed: true}
	for _, k := range keys {
		a, ok := byKey[k]
		if !ok || a.Status != StatusScheduled {
			return nil, ErrAttemptSettled
		}
		result.Appointments = append(result.Appointments, a)
		result.Total += a.Amount
	}
	return result, nil
}

func (s *Service) notifyScheduled(ctx context.Context, payer billing.Payer, appts []Appointment, total int64) {
	when := make([]string, len(appts))
	for i, a := range appts {
		when[i] = fmt.Sprintf("%s on %s", a.AppointmentType, describeTiming(a.Timing))
	}
	summary := strings.Join(when, "; ")

	s.notifyPatient(ctx, payer, clinic.UrgencyLow,
		"Your appointment is confirmed: %s. Total %s.", summary, clinic.FormatCents(total))
	s.send(ctx, notify.Admin(clinic.UrgencyLow,
		"%s booked %d appointment(s): %s. Total %s.", payer.Name, len(appts), summary, clinic.FormatCents(total)))
}

// BulkSchedule runs one independent single-slot booking per item. Failures stay
// in their own result; only an empty batch fails the whole call.
func (s *Service) BulkSchedule(ctx context.Context, items []BulkItem) ([]BulkResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	s.metrics.ObserveBulkBatch(len(items))

	results := make([]BulkResult, len(items))
	var g errgroup.Group
	g.SetLimit(s.cfg.BulkConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.bulkOne(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) bulkOne(ctx context.Context, item BulkItem) BulkResult {
	out := BulkResult{PatientID: item.PatientID, SlotID: item.SlotID}

	res, err := s.Schedule(ctx, ScheduleRequest{
		SlotIDs:     []uuid.UUID{item.SlotID},
		PatientID:   item.PatientID,
		PaymentMode: item.PaymentMode,
		Attempt:     item.Attempt,
	})
	if err != nil {
		out.ErrorMsg = err.Error()
		out.ErrorKind = clinic.KindOf(err)
		return out
	}

	out.Success = true
	if len(res.Appointments) > 0 {
		id := res.Appointments[0].ID
		out.AppointmentID = &id
	}
	return out
}

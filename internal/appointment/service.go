package appointment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	redisclient "github.com/dilawari2008/dental-appointment-scheduling/internal/redis"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

var (
	ErrNotOwner           = &clinic.Error{Kind: clinic.KindForbidden, Msg: "appointment belongs to another patient"}
	ErrNewSlotUnavailable = &clinic.Error{Kind: clinic.KindBadRequest, Msg: "new slot is not available"}
	ErrAttemptSettled     = &clinic.Error{Kind: clinic.KindConflict, Msg: "booking attempt already settled, use a new attempt number"}
	ErrOrphanedBooking    = &clinic.Error{Kind: clinic.KindInternal, Msg: "payment captured but appointment not confirmed, flagged for review"}
	ErrEmptyBatch         = &clinic.Error{Kind: clinic.KindValidation, Msg: "bulk request has no items"}
	ErrHoldExpired        = &clinic.Error{Kind: clinic.KindConflict, Msg: "booking hold expired before confirmation, payment refunded"}
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentScheduled   = "APPOINTMENT_SCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentExpired     = "APPOINTMENT_EXPIRED"
	EventAppointmentOrphaned    = "APPOINTMENT_ORPHANED"
	EventBillingAdjustFailed    = "BILLING_ADJUSTMENT_FAILED"
)

// Deps are the collaborators the workflow coordinates.
type Deps struct {
	Repo     Repository
	Slots    SlotRegistry
	Ledger   Ledger
	Patients PatientGate
	Notifier notify.Dispatcher
	Locker   redisclient.Locker
	Metrics  *metrics.SchedulingMetrics
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	slots    SlotRegistry
	ledger   Ledger
	patients PatientGate
	notifier notify.Dispatcher
	locker   redisclient.Locker
	metrics  *metrics.SchedulingMetrics
	log      zerolog.Logger
	now      func() time.Time
	cfg      config.Config
}

func NewService(deps Deps, cfg config.Config) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 1
	}
	return &Service{
		repo:     deps.Repo,
		slots:    deps.Slots,
		ledger:   deps.Ledger,
		patients: deps.Patients,
		notifier: deps.Notifier,
		locker:   deps.Locker,
		metrics:  deps.Metrics,
		log:      deps.Logger.With().Str("component", "appointment").Logger(),
		now:      now,
		cfg:      cfg,
	}
}

// BookingKey identifies one attempt by a patient to book a slot. Retries of the
// same attempt map to the same key, so they never create a second appointment.
func BookingKey(patientID, slotID uuid.UUID, attempt int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", patientID, slotID, attempt)))
	return hex.EncodeToString(sum[:])
}

func requestKey(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:])
}

// withAppointmentLock serialises every read-modify-write on one appointment:
// cancel, reschedule, completion and the expiry of its hold.
func (s *Service) withAppointmentLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	return s.locker.WithKeyLock(ctx, "appointment:"+id.String(), fn)
}

// withAppointmentLockRetry waits for a briefly held appointment lock instead of
// failing. It is for compensation paths that must not be skipped.
func (s *Service) withAppointmentLockRetry(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.withAppointmentLock(ctx, id, fn)
		if err != nil && !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(lockRetryTries))
	return err
}

const lockRetryTries = 8

// Queries

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) GetAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	if f.PatientID == uuid.Nil {
		return nil, clinic.Errorf(clinic.KindValidation, "patientId is required")
	}
	if f.Limit <= 0 {
		f.Limit = s.cfg.SlotQueryLimit
	}
	return s.repo.List(ctx, f)
}

func (s *Service) UpcomingForPatient(ctx context.Context, patientID uuid.UUID, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = s.cfg.SlotQueryLimit
	}
	return s.repo.Upcoming(ctx, patientID, s.now(), limit)
}

// CompleteAppointment marks a visit as done. The slot stays bound for history.
func (s *Service) CompleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var updated *Appointment
	err := s.withAppointmentLock(ctx, id, func(ctx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.CanTransitionTo(StatusCompleted) {
			return fmt.Errorf("complete appointment in status %s: %w", appt.Status, ErrInvalidStatusTransition)
		}
		updated, err = s.repo.UpdateStatus(ctx, id, activeStatuses, StatusCompleted)
		if err != nil {
			return err
		}
		s.logEvent(ctx, id, EventAppointmentCompleted, map[string]any{"patient_id": appt.PatientID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Helpers

func (s *Service) loadOwned(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// payer resolves who is billed and where their messages go. A patient without
// a reachable phone still gets billed; they just miss the SMS.
func (s *Service) payer(ctx context.Context, p *patient.Patient) billing.Payer {
	phone, err := s.patients.ContactPhone(ctx, p)
	if err != nil {
		s.log.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("no contact phone for patient")
	}
	return billing.Payer{PatientID: p.ID, Name: p.DisplayName(), Phone: phone}
}

func (s *Service) releaseAll(ctx context.Context, appts []Appointment) {
	for _, a := range appts {
		if _, err := s.slots.Release(ctx, a.ID); err != nil && !errors.Is(err, slot.ErrNothingToRelease) {
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to release slot")
		}
	}
}

func (s *Service) expireAll(ctx context.Context, appts []Appointment, reason string) {
	for _, a := range appts {
		if _, err := s.repo.UpdateStatus(ctx, a.ID, []Status{StatusPending}, StatusExpired); err != nil {
			s.log.Error().Err(err).Str("appointment_id", a.ID.String()).Msg("failed to expire pending appointment")
			continue
		}
		s.logEvent(ctx, a.ID, EventAppointmentExpired, map[string]any{"reason": reason})
	}
}

// rebind puts a released slot back on its appointment after a later step failed.
func (s *Service) rebind(ctx context.Context, released *slot.Slot, appointmentID uuid.UUID) {
	if released == nil {
		return
	}
	if _, err := s.slots.BindToAppointment(ctx, released.ID, appointmentID); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appointmentID.String()).
			Str("slot_id", released.ID.String()).
			Msg("failed to rebind slot")
		s.logEvent(ctx, appointmentID, EventAppointmentOrphaned, map[string]any{
			"slot_id": released.ID,
			"error":   err.Error(),
		})
	}
}

func (s *Service) send(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("destination", string(n.Destination.Type)).Msg("notification failed")
	}
}

func (s *Service) notifyPatient(ctx context.Context, payer billing.Payer, urgency clinic.Urgency, format string, args ...any) {
	if payer.Phone == "" {
		return
	}
	s.send(ctx, notify.Patient(payer.PatientID, payer.Phone, urgency, format, args...))
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}

	id := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       body,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}

	s.log.Info().
		Str("event_type", eventType).
		Str("appointment_id", appointmentID.String()).
		RawJSON("payload", body).
		Msg("appointment event")
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(clinic.KindOf(err)))
}

func describeTiming(t time.Time) string {
	return t.UTC().Format("Mon Jan 2 2006 15:04 UTC")
}

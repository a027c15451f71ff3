package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
)

type Config struct {
	GatewayTimeout time.Duration
	MaxTries       uint
	RetryInterval  time.Duration
}

type Ledger struct {
	repo     Repository
	gateway  Gateway
	notifier notify.Dispatcher
	cfg      Config
	metrics  *metrics.SchedulingMetrics
	log      zerolog.Logger
}

func NewLedger(repo Repository, gateway Gateway, notifier notify.Dispatcher, cfg Config, m *metrics.SchedulingMetrics, log zerolog.Logger) *Ledger {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	return &Ledger{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("component", "billing").Logger(),
	}
}

// Charge records a pending entry, collects the money and marks the entry
// SUCCESS. A gateway failure leaves the entry FAILED and returns an upstream error.
func (l *Ledger) Charge(ctx context.Context, req ChargeRequest) (*Entry, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(req.AppointmentIDs) == 0 {
		return nil, ErrNoAppointments
	}

	entry, err := l.repo.Insert(ctx, Entry{
		PatientID:      req.Payer.PatientID,
		PayerName:      req.Payer.Name,
		Contact:        optional(req.Payer.Phone),
		AppointmentIDs: req.AppointmentIDs,
		Amount:         req.Amount,
		PaymentMode:    req.PaymentMode,
		Status:         StatusPending,
		Notes:          optional(req.Notes),
	})
	if err != nil {
		return nil, err
	}

	return l.settle(ctx, entry, req.Payer, GatewayRequest{
		IdempotencyKey: entry.ID.String(),
		Amount:         entry.Amount,
		Description:    fmt.Sprintf("Dental appointments %s", joinIDs(entry.AppointmentIDs)),
	})
}

// Refund reverses a successful charge in full with a new refund entry.
func (l *Ledger) Refund(ctx context.Context, billingID uuid.UUID) (*Entry, error) {
	original, err := l.repo.Get(ctx, billingID)
	if err != nil {
		return nil, fmt.Errorf("load billing %s: %w", billingID, err)
	}
	if original.IsRefund {
		return nil, ErrRefundOfRefund
	}
	if original.Status != StatusSuccess {
		return nil, ErrNotRefundable
	}

	payer := Payer{PatientID: original.PatientID, Name: original.PayerName}
	if original.Contact != nil {
		payer.Phone = *original.Contact
	}
	return l.issueRefund(ctx, original, payer, original.Amount, original.AppointmentIDs, original.PaymentMode,
		fmt.Sprintf("Refund for billing %s", original.ID))
}

// RefundAppointment refunds one appointment's share of the charge that paid for it.
func (l *Ledger) RefundAppointment(ctx context.Context, req RefundRequest) (*Entry, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	original, err := l.chargeFor(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	notes := req.Notes
	if notes == "" {
		notes = fmt.Sprintf("Refund for appointment %s", req.AppointmentID)
	}
	mode := req.PaymentMode
	if mode == "" {
		mode = original.PaymentMode
	}
	return l.issueRefund(ctx, original, req.Payer, req.Amount, []uuid.UUID{req.AppointmentID}, mode, notes)
}

// AdjustArrears settles a price difference. A zero difference is a no-op and returns nil, nil.
func (l *Ledger) AdjustArrears(ctx context.Context, req AdjustRequest) (*Entry, error) {
	switch {
	case req.Difference > 0:
		return l.Charge(ctx, ChargeRequest{
			Payer:          req.Payer,
			AppointmentIDs: []uuid.UUID{req.AppointmentID},
			Amount:         req.Difference,
			PaymentMode:    req.PaymentMode,
			Notes:          req.Notes,
		})
	case req.Difference < 0:
		return l.RefundAppointment(ctx, RefundRequest{
			Payer:         req.Payer,
			AppointmentID: req.AppointmentID,
			Amount:        -req.Difference,
			PaymentMode:   req.PaymentMode,
			Notes:         req.Notes,
		})
	default:
		return nil, nil
	}
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return l.repo.Get(ctx, id)
}

func (l *Ledger) ChargesForAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Entry, error) {
	return l.repo.ListByAppointment(ctx, appointmentID)
}

// chargeFor finds the latest successful charge that paid for the appointment.
func (l *Ledger) chargeFor(ctx context.Context, appointmentID uuid.UUID) (*Entry, error) {
	entries, err := l.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].IsRefund && entries[i].Status == StatusSuccess {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("charge for appointment %s: %w", appointmentID, ErrBillingNotFound)
}

func (l *Ledger) issueRefund(ctx context.Context, original *Entry, payer Payer, amount int64, appointmentIDs []uuid.UUID, mode clinic.PaymentMode, notes string) (*Entry, error) {
	entry, err := l.repo.Insert(ctx, Entry{
		PatientID:      original.PatientID,
		PayerName:      payer.Name,
		Contact:        optional(payer.Phone),
		AppointmentIDs: appointmentIDs,
		Amount:         amount,
		PaymentMode:    mode,
		Status:         StatusPending,
		IsRefund:       true,
		Notes:          optional(notes),
	})
	if err != nil {
		return nil, err
	}

	req := GatewayRequest{
		IdempotencyKey: entry.ID.String(),
		Amount:         amount,
		Refund:         true,
		Description:    notes,
	}
	if original.GatewayRef != nil {
		req.OriginalRef = *original.GatewayRef
	}
	return l.settle(ctx, entry, payer, req)
}

func (l *Ledger) settle(ctx context.Context, entry *Entry, payer Payer, req GatewayRequest) (*Entry, error) {
	ack, gwErr := l.callGateway(ctx, req)
	if gwErr != nil {
		if _, err := l.repo.MarkStatus(ctx, entry.ID, StatusPending, StatusFailed, nil); err != nil {
			l.log.Error().Err(err).Str("billing_id", entry.ID.String()).Msg("failed to mark billing as failed")
		}
		return nil, fmt.Errorf("billing %s: %w: %v", entry.ID, ErrGatewayFailed, gwErr)
	}

	settled, err := l.repo.MarkStatus(ctx, entry.ID, StatusPending, StatusSuccess, &ack.Reference)
	if err != nil {
		return nil, err
	}

	l.notifySettled(ctx, settled, payer)
	return settled, nil
}

func (l *Ledger) callGateway(ctx context.Context, req GatewayRequest) (GatewayAck, error) {
	op := "charge"
	if req.Refund {
		op = "refund"
	}

	ctx, span := otel.Tracer("billing").Start(ctx, "billing.gateway."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("billing.idempotency_key", req.IdempotencyKey),
		attribute.Int64("billing.amount", req.Amount),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.RetryInterval

	start := time.Now()
	ack, err := backoff.Retry(ctx, func() (GatewayAck, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, l.cfg.GatewayTimeout)
		defer cancel()
		ack, err := l.gateway.Charge(attemptCtx, req)
		if err != nil && errors.Is(err, clinic.ErrValidation) {
			return GatewayAck{}, backoff.Permanent(err)
		}
		return ack, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(l.cfg.MaxTries))

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	l.metrics.ObserveGateway(op, status, time.Since(start).Seconds())
	return ack, err
}

func (l *Ledger) notifySettled(ctx context.Context, e *Entry, payer Payer) {
	if l.notifier == nil {
		return
	}

	amount := clinic.FormatCents(e.Amount)
	patientMsg := fmt.Sprintf("Payment of %s received. Reference %s.", amount, e.ID)
	adminMsg := fmt.Sprintf("Payment of %s received from %s (%s).", amount, payer.Name, e.PaymentMode)
	if e.IsRefund {
		patientMsg = fmt.Sprintf("A refund of %s has been issued. Reference %s.", amount, e.ID)
		adminMsg = fmt.Sprintf("Refund of %s issued to %s (%s).", amount, payer.Name, e.PaymentMode)
	}

	if payer.Phone != "" {
		if err := l.notifier.Notify(ctx, notify.Patient(payer.PatientID, payer.Phone, clinic.UrgencyLow, "%s", patientMsg)); err != nil {
			l.log.Warn().Err(err).Str("billing_id", e.ID.String()).Msg("patient billing notification failed")
		}
	}
	if err := l.notifier.Notify(ctx, notify.Admin(clinic.UrgencyLow, "%s", adminMsg)); err != nil {
		l.log.Warn().Err(err).Str("billing_id", e.ID.String()).Msg("admin billing notification failed")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func joinIDs(ids []uuid.UUID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id.String()
	}
	return out
}

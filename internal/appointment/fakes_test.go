package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	redisclient "github.com/dilawari2008/dental-appointment-scheduling/internal/redis"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

// =========== Mock Repository ===========

type mockRepo struct {
	mu            sync.Mutex
	appointments  map[uuid.UUID]*Appointment
	byKey         map[string]uuid.UUID
	events        []EventLog
	failScheduled bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		appointments: make(map[uuid.UUID]*Appointment),
		byKey:        make(map[string]uuid.UUID),
	}
}

func (m *mockRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) FindByIdempotencyKeys(_ context.Context, keys []string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, k := range keys {
		if id, ok := m.byKey[k]; ok {
			out = append(out, *m.appointments[id])
		}
	}
	return out, nil
}

func (m *mockRepo) UpsertPending(_ context.Context, d Draft) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byKey[d.IdempotencyKey]; ok {
		a := m.appointments[id]
		if a.Status == StatusPending {
			exp := d.ExpiresAt
			a.ExpiresAt = &exp
		}
		cp := *a
		return &cp, nil
	}
	exp := d.ExpiresAt
	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       d.PatientID,
		Status:          StatusPending,
		Timing:          d.Timing,
		SlotType:        d.SlotType,
		AppointmentType: d.AppointmentType,
		PaymentMode:     d.PaymentMode,
		Amount:          d.Amount,
		Notes:           d.Notes,
		IdempotencyKey:  d.IdempotencyKey,
		ExpiresAt:       &exp,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.appointments[a.ID] = a
	m.byKey[a.IdempotencyKey] = a.ID
	cp := *a
	return &cp, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to == StatusScheduled && m.failScheduled {
		return nil, errors.New("connection reset")
	}
	a, ok := m.appointments[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, ErrInvalidStatusTransition
	}
	a.Status = to
	if to != StatusPending {
		a.ExpiresAt = nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) ApplyReschedule(_ context.Context, id uuid.UUID, from []Status, c Change) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, ErrInvalidStatusTransition
	}
	a.Status = StatusRescheduled
	a.Timing = c.Timing
	a.SlotType = c.SlotType
	a.AppointmentType = c.AppointmentType
	a.Amount = c.Amount
	cp := *a
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID != f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *mockRepo) Upcoming(_ context.Context, patientID uuid.UUID, after time.Time, _ int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID && containsStatus(activeStatuses, a.Status) && !a.Timing.Before(after) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepo) FindExpiredPending(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.Status == StatusPending && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

func (m *mockRepo) status(id uuid.UUID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appointments[id].Status
}

func containsStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// =========== Mock Slot Registry ===========

type mockSlots struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot.Slot
}

func newMockSlots() *mockSlots {
	return &mockSlots{slots: make(map[uuid.UUID]*slot.Slot)}
}

func (m *mockSlots) add(st clinic.SlotType, at clinic.AppointmentType, date time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &slot.Slot{ID: uuid.New(), SlotType: st, AppointmentType: at, Date: date, Available: true}
	m.slots[s.ID] = s
	return s.ID
}

func (m *mockSlots) get(id uuid.UUID) slot.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.slots[id]
}

func (m *mockSlots) AreAllAvailable(_ context.Context, ids []uuid.UUID) ([]slot.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]slot.Reservation, 0, len(ids))
	for _, id := range ids {
		s, ok := m.slots[id]
		if !ok || !s.Available {
			return nil, fmt.Errorf("slot %s: %w", id, slot.ErrSlotUnavailable)
		}
		out = append(out, reservationOf(s))
	}
	return out, nil
}

func (m *mockSlots) ReserveAll(_ context.Context, bindings []slot.Binding) ([]slot.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bindings {
		s, ok := m.slots[b.SlotID]
		if !ok || !s.Available {
			return nil, fmt.Errorf("reserve slot %s: %w", b.SlotID, slot.ErrSlotUnavailable)
		}
	}
	out := make([]slot.Reservation, 0, len(bindings))
	for _, b := range bindings {
		s := m.slots[b.SlotID]
		id := b.AppointmentID
		s.Available = false
		s.AppointmentID = &id
		out = append(out, reservationOf(s))
	}
	return out, nil
}

func (m *mockSlots) BindToAppointment(_ context.Context, slotID, appointmentID uuid.UUID) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[slotID]
	if !ok || !s.Available {
		return nil, fmt.Errorf("bind slot %s: %w", slotID, slot.ErrSlotUnavailable)
	}
	id := appointmentID
	s.Available = false
	s.AppointmentID = &id
	cp := *s
	return &cp, nil
}

func (m *mockSlots) Release(_ context.Context, appointmentID uuid.UUID) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.AppointmentID != nil && *s.AppointmentID == appointmentID {
			s.Available = true
			s.AppointmentID = nil
			cp := *s
			return &cp, nil
		}
	}
	return nil, slot.ErrNothingToRelease
}

func reservationOf(s *slot.Slot) slot.Reservation {
	return slot.Reservation{SlotID: s.ID, SlotType: s.SlotType, AppointmentType: s.AppointmentType, Date: s.Date}
}

// =========== Mock Ledger ===========

type mockLedger struct {
	mu        sync.Mutex
	entries   []billing.Entry
	charges   []billing.ChargeRequest
	refunds   []billing.RefundRequest
	adjusts   []billing.AdjustRequest
	chargeErr error

	// hooks run before the ledger records anything, outside its lock
	chargeHook func()
	refundHook func()
}

func (l *mockLedger) Charge(_ context.Context, req billing.ChargeRequest) (*billing.Entry, error) {
	if l.chargeHook != nil {
		l.chargeHook()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.charges = append(l.charges, req)
	if l.chargeErr != nil {
		return nil, l.chargeErr
	}
	e := billing.Entry{
		ID:             uuid.New(),
		PatientID:      req.Payer.PatientID,
		AppointmentIDs: req.AppointmentIDs,
		Amount:         req.Amount,
		PaymentMode:    req.PaymentMode,
		Status:         billing.StatusSuccess,
	}
	l.entries = append(l.entries, e)
	return &e, nil
}

func (l *mockLedger) RefundAppointment(_ context.Context, req billing.RefundRequest) (*billing.Entry, error) {
	if l.refundHook != nil {
		l.refundHook()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, req)
	if !l.hasCharge(req.AppointmentID) {
		return nil, billing.ErrBillingNotFound
	}
	e := billing.Entry{
		ID:             uuid.New(),
		PatientID:      req.Payer.PatientID,
		AppointmentIDs: []uuid.UUID{req.AppointmentID},
		Amount:         req.Amount,
		PaymentMode:    req.PaymentMode,
		Status:         billing.StatusSuccess,
		IsRefund:       true,
	}
	l.entries = append(l.entries, e)
	return &e, nil
}

func (l *mockLedger) AdjustArrears(_ context.Context, req billing.AdjustRequest) (*billing.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adjusts = append(l.adjusts, req)
	return &billing.Entry{ID: uuid.New(), Amount: req.Difference, Status: billing.StatusSuccess}, nil
}

func (l *mockLedger) ChargesForAppointment(_ context.Context, appointmentID uuid.UUID) ([]billing.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []billing.Entry
	for _, e := range l.entries {
		for _, id := range e.AppointmentIDs {
			if id == appointmentID {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (l *mockLedger) hasCharge(appointmentID uuid.UUID) bool {
	for _, e := range l.entries {
		if e.IsRefund {
			continue
		}
		for _, id := range e.AppointmentIDs {
			if id == appointmentID {
				return true
			}
		}
	}
	return false
}

func (l *mockLedger) chargeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.charges)
}

// =========== Mock Patient Gate, Notifier, Locker ===========

type mockGate struct {
	patients     map[uuid.UUID]*patient.Patient
	vitalErr     error
	insuranceErr error
}

func (g *mockGate) add(name, phone string) uuid.UUID {
	p := &patient.Patient{ID: uuid.New(), FullName: &name, PhoneNumber: &phone}
	g.patients[p.ID] = p
	return p.ID
}

func (g *mockGate) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := g.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (g *mockGate) HasVitalInfo(context.Context, uuid.UUID) error      { return g.vitalErr }
func (g *mockGate) HasValidInsurance(context.Context, uuid.UUID) error { return g.insuranceErr }

func (g *mockGate) ContactPhone(_ context.Context, p *patient.Patient) (string, error) {
	if p.PhoneNumber == nil {
		return "", patient.ErrNoContactReachable
	}
	return *p.PhoneNumber, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (n *mockNotifier) Notify(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *mockNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

// mockLocker serialises per key in process, the way the Redis locker does across replicas.
type mockLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	calls int
}

func (l *mockLocker) WithKeyLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.calls++
	if l.held[key] {
		l.mu.Unlock()
		return fmt.Errorf("lock %s: %w", key, redisclient.ErrLockNotAcquired)
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

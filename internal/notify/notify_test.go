package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingDispatcher) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestValidate(t *testing.T) {
	require.NoError(t, Admin(clinic.UrgencyLow, "hello").Validate())
	require.NoError(t, Patient(uuid.New(), "+15550001111", clinic.UrgencyLow, "hi").Validate())

	require.ErrorIs(t, Patient(uuid.New(), "", clinic.UrgencyLow, "hi").Validate(), clinic.ErrValidation)
	require.ErrorIs(t, Admin(clinic.UrgencyLow, " ").Validate(), clinic.ErrValidation)

	n := Admin(clinic.UrgencyLow, "x")
	n.Destination.Type = "PIGEON"
	require.ErrorIs(t, n.Validate(), clinic.ErrValidation)
}

func TestKafkaDispatcherKeysByAddress(t *testing.T) {
	w := &fakeWriter{}
	k := &KafkaDispatcher{writer: w}
	patientID := uuid.New()

	err := k.Notify(context.Background(), Patient(patientID, "+15550001111", clinic.UrgencyHigh, "moved to %s", "Friday"))
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	require.Equal(t, "+15550001111", string(w.msgs[0].Key))

	var decoded Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, "moved to Friday", decoded.Message)
	require.Equal(t, patientID, *decoded.UserID)
	require.NotEqual(t, uuid.Nil, decoded.ID)

	var eventType string
	for _, h := range w.msgs[0].Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	require.Equal(t, "notification.sms", eventType)
}

func TestKafkaDispatcherErrors(t *testing.T) {
	boom := errors.New("broker down")
	k := &KafkaDispatcher{writer: &fakeWriter{err: boom}}

	err := k.Notify(context.Background(), Patient(uuid.New(), "+15550001111", clinic.UrgencyLow, "x"))
	require.ErrorIs(t, err, boom)

	err = k.Notify(context.Background(), Patient(uuid.New(), "", clinic.UrgencyLow, "x"))
	require.ErrorIs(t, err, clinic.ErrValidation)
}

func TestPgStoreNotify(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), clinic.UserAdmin, (*uuid.UUID)(nil), "new booking", clinic.UrgencyMedium, clinic.DestinationAdminPanel, (*string)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewPgStore(mock).Notify(context.Background(), Admin(clinic.UrgencyMedium, "new booking"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	now := time.Now()
	mock.ExpectQuery("FROM notifications").
		WithArgs(clinic.DestinationAdminPanel, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_type", "user_id", "message", "urgency", "destination_type", "destination_address", "created_at"}).
			AddRow(id, clinic.UserAdmin, (*uuid.UUID)(nil), "cancelled", clinic.UrgencyMedium, clinic.DestinationAdminPanel, (*string)(nil), now))

	list, err := NewPgStore(mock).List(context.Background(), clinic.DestinationAdminPanel, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "cancelled", list[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingDispatcher{}
	boom := errors.New("boom")
	failing := &recordingDispatcher{err: boom}

	err := Multi{ok, nil, failing}.Notify(context.Background(), Admin(clinic.UrgencyLow, "x"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, ok.count())
	require.Equal(t, 1, failing.count())
}

func TestRouteByDestination(t *testing.T) {
	sms := &recordingDispatcher{}
	fallback := &recordingDispatcher{}
	r := Route{
		ByDestination: map[clinic.DestinationType]Dispatcher{clinic.DestinationSMS: sms},
		Default:       fallback,
	}

	require.NoError(t, r.Notify(context.Background(), Patient(uuid.New(), "+1555", clinic.UrgencyLow, "x")))
	require.NoError(t, r.Notify(context.Background(), Admin(clinic.UrgencyLow, "y")))
	require.Equal(t, 1, sms.count())
	require.Equal(t, 1, fallback.count())
}

func TestAsyncSwallowsFailures(t *testing.T) {
	failing := &recordingDispatcher{err: errors.New("smtp down")}
	m := metrics.NewSchedulingMetrics(prometheus.NewRegistry())
	a := NewAsync(failing, time.Second, zerolog.Nop(), m)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Notify(ctx, Admin(clinic.UrgencyLow, "x")))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, a.Wait(waitCtx))
	require.Equal(t, 1, failing.count())
	require.False(t, failing.sent[0].CreatedAt.IsZero())
}

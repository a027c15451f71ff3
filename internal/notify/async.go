package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
)

// Async hands notifications to the wrapped dispatcher on a background
// goroutine and returns immediately. Delivery is bounded by timeout and
// failures are logged and counted, never returned.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.SchedulingMetrics
	wg      sync.WaitGroup
}

func NewAsync(next Dispatcher, timeout time.Duration, log zerolog.Logger, m *metrics.SchedulingMetrics) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, timeout: timeout, log: log, metrics: m}
}

func (a *Async) Notify(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		dest := string(n.Destination.Type)
		if err := a.next.Notify(sendCtx, n); err != nil {
			a.metrics.ObserveNotification(dest, "failed")
			a.log.Warn().Err(err).
				Str("destination", dest).
				Str("user_type", string(n.UserType)).
				Msg("notification dispatch failed")
			return
		}
		a.metrics.ObserveNotification(dest, "ok")
	}()
	return nil
}

// Wait blocks until every in-flight notification has finished or ctx ends.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

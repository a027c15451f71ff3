package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

type Expirer interface {
	ExpirePendingAppointments(ctx context.Context) (int, error)
}

type SlotGenerator interface {
	GenerateMonth(ctx context.Context, month time.Time, plan slot.Plan) (int64, error)
}

// Worker runs the periodic maintenance jobs: releasing lapsed holds and
// publishing next month's slots.
type Worker struct {
	expirer    Expirer
	generator  SlotGenerator
	plan       slot.Plan
	metrics    *metrics.SchedulingMetrics
	log        zerolog.Logger
	runTimeout time.Duration
	now        func() time.Time
}

func New(expirer Expirer, generator SlotGenerator, plan slot.Plan, m *metrics.SchedulingMetrics, log zerolog.Logger) *Worker {
	return &Worker{
		expirer:    expirer,
		generator:  generator,
		plan:       plan,
		metrics:    m,
		log:        log.With().Str("component", "worker").Logger(),
		runTimeout: 20 * time.Second,
		now:        time.Now,
	}
}

func (w *Worker) RunExpiry(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	start := time.Now()
	n, err := w.expirer.ExpirePendingAppointments(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry run error")
		return
	}
	w.log.Info().Int("expired", n).Dur("duration", time.Since(start)).Msg("expiry run complete")
}

// RunSlotGeneration publishes the slots of the month after now.
func (w *Worker) RunSlotGeneration(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	now := w.now().UTC()
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)

	created, err := w.generator.GenerateMonth(runCtx, next, w.plan)
	if err != nil {
		w.log.Error().Err(err).Str("month", next.Format("2006-01")).Msg("slot generation failed")
		return
	}
	w.metrics.AddSlotsGenerated(created)
	w.log.Info().Int64("created", created).Str("month", next.Format("2006-01")).Msg("slot generation complete")
}

// Register adds both jobs to c. Jobs run against ctx so shutdown cancels them.
func (w *Worker) Register(ctx context.Context, c *cron.Cron, expirySpec, generationSpec string) error {
	if _, err := c.AddFunc(expirySpec, func() { w.RunExpiry(ctx) }); err != nil {
		return fmt.Errorf("schedule expiry %q: %w", expirySpec, err)
	}
	if _, err := c.AddFunc(generationSpec, func() { w.RunSlotGeneration(ctx) }); err != nil {
		return fmt.Errorf("schedule slot generation %q: %w", generationSpec, err)
	}
	return nil
}

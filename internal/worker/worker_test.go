package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

type fakeExpirer struct {
	calls int
	err   error
}

func (f *fakeExpirer) ExpirePendingAppointments(ctx context.Context) (int, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("expected a deadline")
	}
	return 3, f.err
}

type fakeGenerator struct {
	month time.Time
	plan  slot.Plan
}

func (f *fakeGenerator) GenerateMonth(_ context.Context, month time.Time, plan slot.Plan) (int64, error) {
	f.month = month
	f.plan = plan
	return 250, nil
}

func TestRunExpiry(t *testing.T) {
	exp := &fakeExpirer{}
	w := New(exp, &fakeGenerator{}, slot.DefaultPlan(), nil, zerolog.Nop())

	w.RunExpiry(context.Background())
	exp.err = errors.New("db down")
	w.RunExpiry(context.Background())

	require.Equal(t, 2, exp.calls)
}

func TestRunSlotGenerationTargetsNextMonth(t *testing.T) {
	gen := &fakeGenerator{}
	w := New(&fakeExpirer{}, gen, slot.DefaultPlan(), nil, zerolog.Nop())
	w.now = func() time.Time { return time.Date(2026, 12, 25, 2, 0, 0, 0, time.UTC) }

	w.RunSlotGeneration(context.Background())

	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), gen.month)
	require.Equal(t, []time.Weekday{time.Sunday}, gen.plan.SkipWeekdays)
}

func TestRegisterValidatesSpecs(t *testing.T) {
	w := New(&fakeExpirer{}, &fakeGenerator{}, slot.DefaultPlan(), nil, zerolog.Nop())

	c := cron.New()
	require.NoError(t, w.Register(context.Background(), c, "@every 1m", "0 2 25 * *"))
	require.Len(t, c.Entries(), 2)

	require.Error(t, w.Register(context.Background(), cron.New(), "not a spec", "0 2 25 * *"))
	require.Error(t, w.Register(context.Background(), cron.New(), "@every 1m", "99 * * * *"))
}

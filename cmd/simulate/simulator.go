package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type booking struct {
	appointmentID uuid.UUID
	patientID     uuid.UUID
}

type dataPool struct {
	patients []uuid.UUID
	slots    []uuid.UUID

	mu       sync.Mutex
	bookings []booking
}

func (dp *dataPool) addBooking(b booking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// takeBooking removes and returns a random booking so that two workers never
// cancel or reschedule the same appointment.
func (dp *dataPool) takeBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	i := rng.Intn(len(dp.bookings))
	b := dp.bookings[i]
	dp.bookings[i] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
}

func (dp *dataPool) peekBooking(rng *rand.Rand) (booking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return booking{}, false
	}
	return dp.bookings[rng.Intn(len(dp.bookings))], true
}

type opStats struct {
	total     int64
	success   int64
	conflict  int64
	failed    int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (o *opStats) record(latency time.Duration, status int) {
	atomic.AddInt64(&o.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&o.success, 1)
	case status == http.StatusConflict || status == http.StatusBadRequest:
		atomic.AddInt64(&o.conflict, 1)
	default:
		atomic.AddInt64(&o.failed, 1)
	}

	o.mu.Lock()
	o.latencies = append(o.latencies, latency)
	o.mu.Unlock()
}

func (o *opStats) percentiles() (avg, p50, p95, max time.Duration) {
	o.mu.Lock()
	sorted := append([]time.Duration(nil), o.latencies...)
	o.mu.Unlock()

	if len(sorted) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	at := func(pct int) time.Duration {
		i := len(sorted) * pct / 100
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}
	return sum / time.Duration(len(sorted)), at(50), at(95), sorted[len(sorted)-1]
}

const (
	opBook       = "Book"
	opCancel     = "Cancel"
	opReschedule = "Reschedule"
	opGet        = "Get by ID"
	opUpcoming   = "Upcoming"
	opSlots      = "List slots"
)

var opOrder = []string{opBook, opCancel, opReschedule, opGet, opUpcoming, opSlots}

type simulator struct {
	cfg    simConfig
	data   *dataPool
	client *http.Client
	log    zerolog.Logger
	stats  map[string]*opStats
}

func newSimulator(cfg simConfig, data *dataPool, log zerolog.Logger) *simulator {
	stats := make(map[string]*opStats, len(opOrder))
	for _, op := range opOrder {
		stats[op] = &opStats{}
	}
	return &simulator{
		cfg:    cfg,
		data:   data,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
		stats:  stats,
	}
}

func (s *simulator) Run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.cfg.BookRatio:
			s.book(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.CancelRatio:
			s.cancel(ctx, rng)
		case r < s.cfg.BookRatio+s.cfg.CancelRatio+s.cfg.RescheduleRatio:
			s.reschedule(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.getByID(ctx, rng)
			case 1:
				s.upcoming(ctx, rng)
			default:
				s.listSlots(ctx)
			}
		}
	}
}

func (s *simulator) book(ctx context.Context, rng *rand.Rand) {
	patientID := s.data.patients[rng.Intn(len(s.data.patients))]
	slotIDs := []string{s.data.slots[rng.Intn(len(s.data.slots))].String()}
	if rng.Intn(4) == 0 {
		extra := s.data.slots[rng.Intn(len(s.data.slots))].String()
		if extra != slotIDs[0] {
			slotIDs = append(slotIDs, extra)
		}
	}

	var out struct {
		Appointments []struct {
			ID uuid.UUID `json:"id"`
		} `json:"appointments"`
	}
	status := s.call(ctx, opBook, http.MethodPost, "/appointments", map[string]any{
		"slotIds":     slotIDs,
		"patientId":   patientID,
		"paymentMode": "CASH",
		"attempt":     rng.Intn(1 << 20),
	}, &out)
	if status == http.StatusCreated {
		for _, a := range out.Appointments {
			s.data.addBooking(booking{appointmentID: a.ID, patientID: patientID})
		}
	}
}

func (s *simulator) cancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.data.takeBooking(rng)
	if !ok {
		return
	}
	s.call(ctx, opCancel, http.MethodPost, "/appointments/"+b.appointmentID.String()+"/cancel",
		map[string]any{"patientId": b.patientID}, nil)
}

func (s *simulator) reschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.data.takeBooking(rng)
	if !ok {
		return
	}
	newSlot := s.data.slots[rng.Intn(len(s.data.slots))]
	s.call(ctx, opReschedule, http.MethodPost, "/appointments/"+b.appointmentID.String()+"/reschedule",
		map[string]any{"patientId": b.patientID, "newSlotId": newSlot}, nil)
	s.data.addBooking(b)
}

func (s *simulator) getByID(ctx context.Context, rng *rand.Rand) {
	b, ok := s.data.peekBooking(rng)
	if !ok {
		return
	}
	s.call(ctx, opGet, http.MethodGet, "/appointments/"+b.appointmentID.String(), nil, nil)
}

func (s *simulator) upcoming(ctx context.Context, rng *rand.Rand) {
	patientID := s.data.patients[rng.Intn(len(s.data.patients))]
	s.call(ctx, opUpcoming, http.MethodGet, "/patients/"+patientID.String()+"/appointments/upcoming?limit=10", nil, nil)
}

func (s *simulator) listSlots(ctx context.Context) {
	s.call(ctx, opSlots, http.MethodGet, "/slots?limit=20", nil, nil)
}

// call performs one request and records it under op. A zero status means the
// request never got a response.
func (s *simulator) call(ctx context.Context, op, method, path string, body any, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.log.Error().Err(err).Str("op", op).Msg("marshal request")
			return 0
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.stats[op].record(latency, 0)
		}
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.log.Warn().Err(err).Str("op", op).Msg("decode response")
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	s.stats[op].record(latency, resp.StatusCode)
	return resp.StatusCode
}

func (s *simulator) PrintReport(w io.Writer) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, "\n"+line)
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Duration: %s\nWorkers: %d\n\n", s.cfg.Duration, s.cfg.Workers)

	for _, op := range opOrder {
		o := s.stats[op]
		total := atomic.LoadInt64(&o.total)
		if total == 0 {
			continue
		}
		success := atomic.LoadInt64(&o.success)
		conflict := atomic.LoadInt64(&o.conflict)
		failed := atomic.LoadInt64(&o.failed)
		avg, p50, p95, max := o.percentiles()

		fmt.Fprintf(w, "%s:\n", op)
		fmt.Fprintf(w, "  Total: %d\n", total)
		fmt.Fprintf(w, "  Success: %d (%.1f%%)\n", success, pct(success, total))
		if conflict > 0 {
			fmt.Fprintf(w, "  Rejected: %d (%.1f%%)\n", conflict, pct(conflict, total))
		}
		if failed > 0 {
			fmt.Fprintf(w, "  Errors: %d (%.1f%%)\n", failed, pct(failed, total))
		}
		fmt.Fprintf(w, "  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
			avg.Round(time.Millisecond), p50.Round(time.Millisecond),
			p95.Round(time.Millisecond), max.Round(time.Millisecond))
	}
}

func pct(n, total int64) float64 {
	return float64(n) / float64(total) * 100
}

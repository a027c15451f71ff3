package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/logging"
)

type simConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookRatio       float64
	CancelRatio     float64
	RescheduleRatio float64
	PatientLimit    int
	SlotLimit       int
}

func main() {
	var sc simConfig

	cmd := &cobra.Command{
		Use:          "simulate",
		Short:        "Drive concurrent booking traffic against a running api-server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), sc)
		},
	}
	cmd.Flags().StringVar(&sc.APIBaseURL, "url", "http://localhost:8080", "api-server base URL")
	cmd.Flags().DurationVar(&sc.Duration, "duration", 30*time.Second, "how long to run")
	cmd.Flags().IntVar(&sc.Workers, "workers", 10, "concurrent clients")
	cmd.Flags().Float64Var(&sc.BookRatio, "book", 0.5, "share of operations that book")
	cmd.Flags().Float64Var(&sc.CancelRatio, "cancel", 0.1, "share of operations that cancel")
	cmd.Flags().Float64Var(&sc.RescheduleRatio, "reschedule", 0.1, "share of operations that reschedule; the rest are reads")
	cmd.Flags().IntVar(&sc.PatientLimit, "patients", 400, "patients to draw from")
	cmd.Flags().IntVar(&sc.SlotLimit, "slots", 200, "open slots to contend for")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, sc simConfig) error {
	if sc.Workers <= 0 {
		return fmt.Errorf("--workers must be > 0")
	}
	if sc.Duration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	if total := sc.BookRatio + sc.CancelRatio + sc.RescheduleRatio; total > 1 {
		return fmt.Errorf("book + cancel + reschedule must not exceed 1, got %.2f", total)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "simulate")
	logger.Info().
		Dur("duration", sc.Duration).
		Int("workers", sc.Workers).
		Float64("book", sc.BookRatio).
		Float64("cancel", sc.CancelRatio).
		Float64("reschedule", sc.RescheduleRatio).
		Msg("simulator starting")

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, db.PoolConfig{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	data, err := loadDataPool(loadCtx, pool, sc)
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	logger.Info().Int("patients", len(data.patients)).Int("slots", len(data.slots)).Msg("data pool loaded")

	sim := newSimulator(sc, data, logger)
	sim.Run(ctx)
	sim.PrintReport(os.Stdout)
	return nil
}

// loadDataPool picks patients who can book with cash and open future slots.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, sc simConfig) (*dataPool, error) {
	dp := &dataPool{}

	patients, err := collectIDs(ctx, pool, `
		SELECT id FROM patients
		WHERE NOT deleted AND full_name IS NOT NULL AND date_of_birth IS NOT NULL
		LIMIT $1
	`, sc.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dp.patients = patients

	slots, err := collectIDs(ctx, pool, `
		SELECT id FROM slots
		WHERE available AND NOT deleted AND date > now()
		ORDER BY date
		LIMIT $1
	`, sc.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	dp.slots = slots

	if len(dp.patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run seed first")
	}
	if len(dp.slots) == 0 {
		return nil, fmt.Errorf("no open slots loaded, run clinicctl slots generate first")
	}
	return dp, nil
}

func collectIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}


package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/app"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/logging"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "scheduler-worker")
	logger.Info().
		Str("env", cfg.Env).
		Str("expiry_schedule", cfg.ExpirySchedule).
		Str("slot_generation_schedule", cfg.SlotGenerationSchedule).
		Msg("scheduler-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, "scheduler-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	w := worker.New(a.Service, a.Generator, slot.DefaultPlan(), a.Metrics, logger)

	cronLogger := cron.PrintfLogger(&logger)
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if err := w.Register(rootCtx, c, cfg.ExpirySchedule, cfg.SlotGenerationSchedule); err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule")
	}

	// Run once at startup
	w.RunExpiry(rootCtx)

	c.Start()
	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping scheduler-worker")

	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error closing dependencies")
	}
}

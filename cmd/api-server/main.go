package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/api"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/app"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/logging"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, "api-server", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments:  a.Service,
		Slots:         a.Slots,
		Billing:       a.Ledger,
		Notifications: a.Notifications,
		Pricing:       cfg.Pricing,
		Health:        api.NewHealthHandler(a.PingPostgres, a.PingRedis, cfg.Env, version),
		Metrics:       promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, "api-server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error closing dependencies")
	}
}

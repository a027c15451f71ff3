// Package app wires the scheduling engine from configuration. Every binary
// builds the same graph so the api-server, the worker and clinicctl agree on
// how bookings are charged and announced.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/appointment"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/billing"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/metrics"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/notify"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	redisclient "github.com/dilawari2008/dental-appointment-scheduling/internal/redis"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/tracing"
)

type App struct {
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Registry      *prometheus.Registry
	Metrics       *metrics.SchedulingMetrics
	Slots         *slot.PgRegistry
	Generator     *slot.Generator
	Patients      *patient.PgGate
	Ledger        *billing.Ledger
	Notifications *notify.PgStore
	Notifier      *notify.Async
	Service       *appointment.Service

	log           zerolog.Logger
	kafka         *notify.KafkaDispatcher
	traceShutdown func(context.Context) error
	closed        bool
}

// New installs tracing, connects to Postgres and Redis and builds the service
// graph. service names the binary in exported spans.
func New(ctx context.Context, cfg config.Config, service string, log zerolog.Logger) (*App, error) {
	traceShutdown, err := tracing.Setup(ctx, tracing.FromAppConfig(cfg, service))
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}
	if cfg.OTelEnabled {
		log.Info().Str("endpoint", cfg.OTLPEndpoint).Float64("sample_ratio", cfg.OTelSampleRatio).Msg("exporting traces over OTLP")
	}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolConfig{MaxConns: cfg.PostgresMaxConn})
	cancelPg()
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		pool.Close()
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &App{
		Pool:          pool,
		Redis:         rdb,
		Registry:      reg,
		Metrics:       metrics.NewSchedulingMetrics(reg),
		log:           log,
		traceShutdown: traceShutdown,
	}

	gateway, err := newGateway(cfg, log)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.Notifications = notify.NewPgStore(pool)
	a.Notifier = notify.NewAsync(a.newDispatcher(cfg), cfg.NotifyTimeout, log, a.Metrics)

	a.Slots = slot.NewPgRegistry(pool, cfg.SlotQueryLimit)
	a.Generator = slot.NewGenerator(pool)
	a.Patients = patient.NewPgGate(pool)
	a.Ledger = billing.NewLedger(
		billing.NewPgRepository(pool),
		gateway,
		a.Notifier,
		billing.Config{GatewayTimeout: cfg.GatewayTimeout, MaxTries: cfg.GatewayMaxTries},
		a.Metrics,
		log,
	)
	a.Service = appointment.NewService(appointment.Deps{
		Repo:     appointment.NewPgRepository(pool),
		Slots:    a.Slots,
		Ledger:   a.Ledger,
		Patients: a.Patients,
		Notifier: a.Notifier,
		Locker:   redisclient.NewRedisLocker(rdb, cfg.LockTTL),
		Metrics:  a.Metrics,
		Logger:   log,
	}, cfg)

	return a, nil
}

// newDispatcher stores every notification for the admin panel and, when Kafka
// is configured, also publishes patient-facing ones for the SMS and email senders.
func (a *App) newDispatcher(cfg config.Config) notify.Dispatcher {
	if len(cfg.KafkaBrokers) == 0 {
		return a.Notifications
	}

	a.kafka = notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.NotifyTopic)
	a.log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.NotifyTopic).Msg("publishing notifications to Kafka")

	outbound := notify.Multi{a.Notifications, a.kafka}
	return notify.Route{
		ByDestination: map[clinic.DestinationType]notify.Dispatcher{
			clinic.DestinationSMS:   outbound,
			clinic.DestinationEmail: outbound,
		},
		Default: a.Notifications,
	}
}

func newGateway(cfg config.Config, log zerolog.Logger) (billing.Gateway, error) {
	if cfg.StripeSecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, using stub payment gateway")
		return billing.StubGateway{}, nil
	}
	gw, err := billing.NewStripeGateway(billing.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		Currency:      cfg.StripeCurrency,
		PaymentMethod: cfg.StripePaymentMeth,
	})
	if err != nil {
		return nil, fmt.Errorf("stripe gateway: %w", err)
	}
	return gw, nil
}

func (a *App) PingPostgres(ctx context.Context) error { return a.Pool.Ping(ctx) }
func (a *App) PingRedis(ctx context.Context) error    { return a.Redis.Ping(ctx).Err() }

// Close drains pending notifications and closes every connection.
func (a *App) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true

	var errs []error
	if a.Notifier != nil {
		if err := a.Notifier.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notifications: %w", err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
		}
	}
	if err := a.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	a.Pool.Close()
	// last, so spans ended while draining are flushed
	if a.traceShutdown != nil {
		if err := a.traceShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", err))
		}
	}
	return errors.Join(errs...)
}

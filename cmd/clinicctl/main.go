package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/app"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/logging"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Operate the dental appointment scheduler",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(appointmentsCmd())
	rootCmd.AddCommand(billingCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.MigrateUp(cfg.PostgresDSN); err != nil {
				return err
			}
			return printVersion(cfg.PostgresDSN)
		},
	})

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be > 0")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := db.MigrateDown(cfg.PostgresDSN, steps); err != nil {
				return err
			}
			return printVersion(cfg.PostgresDSN)
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return printVersion(cfg.PostgresDSN)
		},
	})

	return cmd
}

func printVersion(dsn string) error {
	version, dirty, err := db.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	fmt.Printf("Schema version: %d (dirty=%t)\n", version, dirty)
	return nil
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage bookable slots",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Create the slots of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawMonth, _ := cmd.Flags().GetString("month")
			rawType, _ := cmd.Flags().GetString("type")

			month, err := time.Parse("2006-01", rawMonth)
			if err != nil {
				return fmt.Errorf("--month must be YYYY-MM: %w", err)
			}
			plan := slot.DefaultPlan()
			if rawType != "" {
				t, err := clinic.ParseAppointmentType(strings.ToUpper(rawType))
				if err != nil {
					return err
				}
				plan.AppointmentType = t
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				created, err := a.Generator.GenerateMonth(ctx, month, plan)
				if err != nil {
					return err
				}
				a.Metrics.AddSlotsGenerated(created)
				fmt.Printf("Created %d slot(s) for %s.\n", created, month.Format("2006-01"))
				return nil
			})
		},
	}
	generateCmd.Flags().String("month", time.Now().UTC().AddDate(0, 1, 0).Format("2006-01"), "Month to generate (YYYY-MM)")
	generateCmd.Flags().String("type", "", "Appointment type served by the slots; empty rotates through every type")
	cmd.AddCommand(generateCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			limit, _ := cmd.Flags().GetInt("limit")

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				from := clinic.StartOfDayUTC(time.Now())
				slots, err := a.Slots.FindAvailable(ctx, slot.Query{From: from, To: from.AddDate(0, 0, days), Limit: limit})
				if err != nil {
					return err
				}
				fmt.Printf("%-36s %-8s %-12s %s\n", "ID", "SLOT", "TYPE", "DATE")
				for _, s := range slots {
					fmt.Printf("%-36s %-8s %-12s %s\n", s.ID, s.SlotType, s.AppointmentType, s.Date.Format(time.DateOnly))
				}
				return nil
			})
		},
	}
	listCmd.Flags().Int("days", 7, "How many days ahead to look")
	listCmd.Flags().Int("limit", 50, "Maximum number of slots")
	cmd.AddCommand(listCmd)

	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Administer appointments",
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an appointment on behalf of the clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				appt, err := a.Service.AdminCancel(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Appointment %s is now %s.\n", appt.ID, appt.Status)
				return nil
			})
		},
	}
	cancelCmd.Flags().String("id", "", "Appointment ID")
	cmd.AddCommand(cancelCmd)

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark a scheduled appointment as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				appt, err := a.Service.CompleteAppointment(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Appointment %s is now %s.\n", appt.ID, appt.Status)
				return nil
			})
		},
	}
	completeCmd.Flags().String("id", "", "Appointment ID")
	cmd.AddCommand(completeCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire pending appointments whose hold has lapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Service.ExpirePendingAppointments(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d appointment(s).\n", n)
				return nil
			})
		},
	})

	return cmd
}

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Inspect and refund billing entries",
	}

	refundCmd := &cobra.Command{
		Use:   "refund",
		Short: "Refund a successful charge in full",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idFlag(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				entry, err := a.Ledger.Refund(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("Refund %s of %s issued (%s).\n", entry.ID, clinic.FormatCents(entry.Amount), entry.Status)
				return nil
			})
		},
	}
	refundCmd.Flags().String("id", "", "Billing entry ID")
	cmd.AddCommand(refundCmd)

	return cmd
}

func idFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--id must be a valid UUID")
	}
	return id, nil
}

// withApp builds the full service graph, runs fn and tears everything down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "clinicctl").Level(zerolog.WarnLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, "clinicctl", logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("error closing dependencies")
		}
	}()

	return fn(ctx, a)
}

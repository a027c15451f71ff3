package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/clinic"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/db"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/logging"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/patient"
	"github.com/dilawari2008/dental-appointment-scheduling/internal/slot"
)

var insurers = []clinic.InsuranceName{
	clinic.InsuranceDeltaDental,
	clinic.InsuranceCigna,
	clinic.InsuranceAetna,
	clinic.InsuranceMetLife,
	clinic.InsuranceGuardian,
}

func main() {
	var patients, dependants, months int

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Fill the database with fake patients and bookable slots",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), patients, dependants, months)
		},
	}
	cmd.Flags().IntVar(&patients, "patients", 500, "patients with their own phone")
	cmd.Flags().IntVar(&dependants, "dependants", 100, "dependants reached through a guarantor")
	cmd.Flags().IntVar(&months, "months", 2, "months of slots to generate, starting with the current one")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, patients, dependants, months int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolConfig{MaxConns: cfg.PostgresMaxConn})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	guarantors, err := seedPatients(ctx, patient.NewPgGate(pool), faker, patients, dependants, logger)
	if err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}
	logger.Info().Int("guarantors", guarantors).Int("dependants", dependants).Msg("patients seeded")

	gen := slot.NewGenerator(pool)
	start := time.Now().UTC()
	for i := 0; i < months; i++ {
		month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		created, err := gen.GenerateMonth(ctx, month, slot.DefaultPlan())
		if err != nil {
			return fmt.Errorf("seed slots for %s: %w", month.Format("2006-01"), err)
		}
		logger.Info().Int64("created", created).Str("month", month.Format("2006-01")).Msg("slots seeded")
	}

	logger.Info().Msg("seed complete")
	return nil
}

// seedPatients creates count adults and then dependants whose guarantor is a
// random adult. Roughly a third of the adults carry no insurance.
func seedPatients(ctx context.Context, gate *patient.PgGate, faker *gofakeit.Faker, count, dependants int, log zerolog.Logger) (int, error) {
	adults := make([]*patient.Patient, 0, count)

	for i := 0; i < count; i++ {
		name := faker.Name()
		phone := faker.Phone()
		dob := faker.DateRange(time.Now().AddDate(-80, 0, 0), time.Now().AddDate(-18, 0, 0))

		p := patient.Patient{
			FullName:      &name,
			PhoneNumber:   &phone,
			DateOfBirth:   &dob,
			InsuranceName: clinic.InsuranceNone,
		}
		if faker.Number(1, 3) > 1 {
			insID := fmt.Sprintf("%s-%d", faker.LetterN(3), faker.Number(100000, 999999))
			p.InsuranceName = insurers[faker.Number(0, len(insurers)-1)]
			p.InsuranceID = &insID
		}

		created, err := gate.Create(ctx, p)
		if err != nil {
			return len(adults), fmt.Errorf("patient %d: %w", i, err)
		}
		adults = append(adults, created)

		if (i+1)%100 == 0 {
			log.Info().Msgf("patients seeded: %d/%d", i+1, count)
		}
	}

	if len(adults) == 0 {
		return 0, nil
	}

	for i := 0; i < dependants; i++ {
		guarantor := adults[faker.Number(0, len(adults)-1)]
		name := faker.FirstName() + " " + lastName(guarantor)
		dob := faker.DateRange(time.Now().AddDate(-17, 0, 0), time.Now().AddDate(-2, 0, 0))

		p := patient.Patient{
			FullName:      &name,
			GuarantorID:   &guarantor.ID,
			DateOfBirth:   &dob,
			InsuranceName: guarantor.InsuranceName,
			InsuranceID:   guarantor.InsuranceID,
		}
		if _, err := gate.Create(ctx, p); err != nil {
			return len(adults), fmt.Errorf("dependant %d: %w", i, err)
		}
	}

	return len(adults), nil
}

func lastName(p *patient.Patient) string {
	name := p.DisplayName()
	return name[strings.LastIndex(name, " ")+1:]
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vaxsched/vaxsched/internal/config"
	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/domain/verification"
	"github.com/vaxsched/vaxsched/internal/platform/db"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vaxsched-server",
		Short: "Vaccination dose schedule API server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(fixCmd())
	root.AddCommand(remindCmd())
	return root
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// setup loads config, connects to the database and builds the services.
// The caller closes the returned app.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env, os.Stderr)
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a, err := newApp(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
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
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			count, err := a.migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			statuses, err := a.migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}

func verifyCmd() *cobra.Command {
	var vaccineType, format, out, pairing string
	var unscheduled bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Reconcile appointments against vaccine schedules and print a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("--format must be json or csv")
			}
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := a.verifyOptions(vaccineType, pairing)
			if err != nil {
				return err
			}
			opts.IncludeUnscheduled = unscheduled
			report, err := a.verification.Verify(ctx, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if format == "csv" {
				return verification.WriteCSV(w, report)
			}
			return verification.WriteJSON(w, report)
		},
	}
	cmd.Flags().StringVar(&vaccineType, "vaccine-type", "", "Limit to one vaccine type")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or csv")
	cmd.Flags().StringVar(&out, "out", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&pairing, "pairing", "", "Pairing mode: positional or closest (default from PAIRING_MODE)")
	cmd.Flags().BoolVar(&unscheduled, "unscheduled", false, "Include doses with no appointment yet")
	return cmd
}

func fixCmd() *cobra.Command {
	var vaccineType, pairing, appliedBy string
	var apply bool
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Plan appointment date corrections; write them only with --apply",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := a.verifyOptions(vaccineType, pairing)
			if err != nil {
				return err
			}
			report, err := a.verification.Verify(ctx, opts)
			if err != nil {
				return err
			}
			proposals := report.Proposals()
			w := cmd.OutOrStdout()
			printProposals(w, proposals)
			if !apply || len(proposals) == 0 {
				if len(proposals) > 0 {
					fmt.Fprintln(w, "Dry run. Re-run with --apply to write these corrections.")
				}
				return nil
			}

			res, err := a.verification.ApplyCorrections(ctx, proposals, appliedBy)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Applied %d correction(s), skipped %d stale.\n", len(res.Applied), len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&vaccineType, "vaccine-type", "", "Limit to one vaccine type")
	cmd.Flags().StringVar(&pairing, "pairing", "", "Pairing mode: positional or closest (default from PAIRING_MODE)")
	cmd.Flags().StringVar(&appliedBy, "applied-by", "cli", "Name recorded in the correction log")
	cmd.Flags().BoolVar(&apply, "apply", false, "Write the corrections")
	return cmd
}

func printProposals(w io.Writer, proposals []doseschedule.CorrectionProposal) {
	if len(proposals) == 0 {
		fmt.Fprintln(w, "No corrections needed.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATIENT\tVACCINE\tDOSE\tSTATUS\tCURRENT\tCORRECT\tOFFSET")
	for _, p := range proposals {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%+d\n",
			p.PatientKey, p.VaccineType, p.DoseIndex, p.Status, p.CurrentDate, p.CorrectDate, p.DayOffset)
	}
	tw.Flush()
}

func remindCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			today := a.reminder.Today()
			if date != "" {
				if today, err = doseschedule.ParseDate(date); err != nil {
					return err
				}
			}
			res, err := a.reminder.Sweep(ctx, today)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d, skipped %d, failed %d.\n", res.Sent, res.Skipped, len(res.Failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Sweep as of this date (YYYY-MM-DD); defaults to today in HOSPITAL_TIMEZONE")
	return cmd
}

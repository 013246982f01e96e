package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridiron-data/nflrefresh/internal/cli"
	"github.com/gridiron-data/nflrefresh/internal/config"
	"github.com/gridiron-data/nflrefresh/internal/logger"
	"github.com/gridiron-data/nflrefresh/internal/scheduler"
	"github.com/gridiron-data/nflrefresh/internal/storage"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// shutdownTimeout bounds how long schedule waits for a running refresh on exit.
const shutdownTimeout = 30 * time.Second

func (a *app) newInspectCmd() *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "inspect <file.parquet>",
		Short: "Print the columns and first rows of a Parquet file",
		Long: `Read back a file written by a refresh and print its row count,
columns with their types and the first rows.

Examples:
  nflrefresh inspect data/raw/weekly_2023.parquet
  nflrefresh inspect --rows 0 data/raw/player_stats_2024_20240910.parquet`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := a.setupLogging(config.DefaultSettings().Logging); err != nil {
				return exitWith(ExitValidationError, err)
			}
			ds, err := storage.ReadFile(args[0])
			if err != nil {
				return exitWith(ExitRuntimeError, err)
			}
			cli.PrintDataset(a.stdout, args[0], ds, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", 10, "Number of rows to print (negative prints all)")
	return cmd
}

func (a *app) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the schema.

Supports both JSON and YAML formats. The format is auto-detected
based on file extension (.json, .yaml, .yml) or content.

Exit codes:
  0 - Configuration is valid
  1 - Validation errors (schema violations)
  2 - Parse errors (invalid JSON/YAML syntax)

Examples:
  nflrefresh validate nflrefresh.yaml
  nflrefresh validate --verbose nflrefresh.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.runValidate(args[0])
		},
	}
}

func (a *app) runValidate(path string) error {
	if !a.quiet {
		fmt.Fprintf(a.stdout, "Validating configuration: %s\n", path)
	}

	result := config.ParseConfig(path)
	if len(result.ParseErrors) > 0 {
		cli.PrintParseErrors(a.stderr, result.ParseErrors, a.verbose)
		return exitWith(ExitParseError, nil)
	}
	if len(result.ValidationErrors) > 0 {
		cli.PrintValidationErrors(a.stderr, result.ValidationErrors, a.verbose, a.quiet)
		return exitWith(ExitValidationError, nil)
	}

	settings, err := config.ConvertToSettings(result.Data)
	if err != nil {
		return exitWith(ExitValidationError, err)
	}
	for _, sched := range settings.Schedules {
		if err := scheduler.ValidateCronExpression(sched.Cron); err != nil {
			return exitWith(ExitValidationError, fmt.Errorf("schedule %s: %w", sched.ID, err))
		}
		if err := sched.Request.Validate(); err != nil {
			return exitWith(ExitValidationError, fmt.Errorf("schedule %s: %w", sched.ID, err))
		}
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Configuration is valid (format: %s)\n", result.Format)
		if a.verbose {
			var present []string
			for _, section := range config.Sections {
				if result.HasSection(section) {
					present = append(present, section)
				}
			}
			fmt.Fprintf(a.stdout, "  Sections: %s\n", strings.Join(present, ", "))
			cli.PrintSettingsSummary(a.stdout, settings)
		}
	}
	return nil
}

func (a *app) newScheduleCmd() *cobra.Command {
	var (
		cronExpr string
		jobID    string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run refreshes on a CRON schedule until interrupted",
		Long: `Register refresh jobs and run them on their CRON schedule until the
process receives SIGINT or SIGTERM.

Jobs come from the "schedules" section of the configuration file and,
when --cron is given, from the refresh flags. A tick is skipped while
the previous run of the same job is still in progress.

Examples:
  nflrefresh schedule --config nflrefresh.yaml
  nflrefresh schedule --cron "0 6 * * 2" --mode weekly --seasons 2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var jobs []*scheduler.Job
			if cronExpr != "" {
				mode, err := nflstats.ParseMode(a.mode)
				if err != nil {
					return exitWith(ExitValidationError, err)
				}
				jobs = append(jobs, &scheduler.Job{
					ID:       jobID,
					Schedule: cronExpr,
					Request:  a.request(mode),
					Timeout:  timeout,
				})
			}
			return a.runSchedule(cmd, jobs)
		},
	}
	a.addRefreshFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&a.mode, "mode", "m", string(nflstats.ModeWeekly), "Dataset refreshed by the --cron job")
	f.StringVar(&cronExpr, "cron", "", "CRON expression of a job built from the refresh flags")
	f.StringVar(&jobID, "job-id", "cli", "Identifier of the --cron job")
	f.DurationVar(&timeout, "timeout", 0, "Maximum duration of one scheduled refresh (0 for none)")
	return cmd
}

func (a *app) runSchedule(cmd *cobra.Command, jobs []*scheduler.Job) error {
	settings, err := a.loadSettings(cmd)
	if err != nil {
		return err
	}
	for _, sched := range settings.Schedules {
		jobs = append(jobs, &scheduler.Job{
			ID:       sched.ID,
			Schedule: sched.Cron,
			Request:  sched.Request,
			Timeout:  sched.Timeout,
		})
	}
	if len(jobs) == 0 {
		return exitWith(ExitValidationError, fmt.Errorf("no jobs to schedule: use --cron or a configuration file with schedules"))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	refresher, err := a.buildRefresher(ctx, settings)
	if err != nil {
		return exitWith(ExitRuntimeError, err)
	}
	defer func() {
		if cerr := refresher.Close(); cerr != nil {
			logger.Warn("failed to release resources", "error", cerr.Error())
		}
	}()

	s := scheduler.New(refresher)
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return exitWith(ExitValidationError, err)
		}
	}
	if err := s.Start(ctx); err != nil {
		return exitWith(ExitRuntimeError, err)
	}

	if !a.quiet {
		fmt.Fprintf(a.stdout, "✓ Scheduler started with %d job(s), press Ctrl+C to stop\n", s.JobCount())
		for _, id := range s.JobIDs() {
			if next, err := s.NextRun(id); err == nil {
				fmt.Fprintf(a.stdout, "  %s: next run %s\n", id, next.Format(time.RFC3339))
			}
		}
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		return exitWith(ExitRuntimeError, fmt.Errorf("stopping scheduler: %w", err))
	}
	if !a.quiet {
		fmt.Fprintln(a.stdout, "✓ Scheduler stopped")
	}
	return nil
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "Version: %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Build Date: %s\n", buildDate)
		},
	}
}

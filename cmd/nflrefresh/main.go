// Package main provides the CLI entry point for nflrefresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridiron-data/nflrefresh/internal/cli"
	"github.com/gridiron-data/nflrefresh/internal/config"
	"github.com/gridiron-data/nflrefresh/internal/logger"
	"github.com/gridiron-data/nflrefresh/internal/refresh"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitValidationError = 1
	ExitParseError      = 2
	ExitRuntimeError    = 3
)

var (
	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitWith builds an exitError; a nil err means the message was already printed.
func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// app holds the flag values and writers of one CLI invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	clock  refresh.Clock

	// Global flags
	verbose   bool
	quiet     bool
	logFormat string
	logFile   string
	envFile   string

	// Refresh flags shared by run, weekly, player-stats and schedule
	configPath string
	outputDir  string
	mode       string
	seasons    []int
	season     int
	weeks      []int
	dryRun     bool

	// newPublishers is replaced in tests
	newPublishers publisherFactory
}

func execute(args []string, stdout, stderr io.Writer) int {
	return executeContext(context.Background(), args, stdout, stderr)
}

func executeContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout:        stdout,
		stderr:        stderr,
		clock:         refresh.RealClock{},
		newPublishers: buildPublishers,
	}
	return a.execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	// console logs go to stderr so stdout only carries command output
	logger.SetOutput(a.stderr)
	defer logger.CloseLogFile()

	root := a.newRootCmd()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(a.stderr, "✗ %v\n", ee.err)
		}
		return ee.code
	}
	// flag and argument errors from cobra
	fmt.Fprintf(a.stderr, "✗ %v\n", err)
	return ExitValidationError
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nflrefresh",
		Short: "nflrefresh - NFL statistics dataset refresher",
		Long: `nflrefresh downloads NFL statistics from nflverse releases and stores
one Parquet file per season in a local output directory.

Examples:
  # Refresh weekly team data for the current season
  nflrefresh weekly

  # Refresh player stats for two seasons
  nflrefresh run --mode player_stats --seasons 2022,2023

  # Refresh weeks 1 and 2 of 2023 without writing anything
  nflrefresh weekly --season 2023 --weeks 1,2 --dry-run

  # Validate a configuration file
  nflrefresh validate nflrefresh.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if _, err := logger.ParseFormat(a.logFormat); err != nil {
				return exitWith(ExitValidationError, err)
			}
			if err := config.LoadDotEnv(a.envFile); err != nil {
				return exitWith(ExitValidationError, err)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-error output")
	flags.StringVar(&a.logFormat, "log-format", "", "Console log format: json or human")
	flags.StringVar(&a.logFile, "log-file", "", "Also write JSON logs to this file")
	flags.StringVar(&a.envFile, "env-file", ".env", "Load environment variables from this file if it exists")

	root.AddCommand(
		a.newRunCmd(),
		a.newModeCmd("weekly", nflstats.ModeWeekly, "Refresh weekly team data"),
		a.newModeCmd("player-stats", nflstats.ModePlayerStats, "Refresh player statistics"),
		a.newInspectCmd(),
		a.newValidateCmd(),
		a.newScheduleCmd(),
		a.newVersionCmd(),
	)
	return root
}

// setupLogging applies the configured level, format and log file. Flags
// take precedence over the configuration file.
func (a *app) setupLogging(cfg config.LoggingSettings) error {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}

	formatName := cfg.Format
	if a.logFormat != "" {
		formatName = a.logFormat
	}
	format, err := logger.ParseFormat(formatName)
	if err != nil {
		return err
	}

	file := cfg.File
	if a.logFile != "" {
		file = a.logFile
	}
	if file != "" {
		return logger.SetLogFile(file, level, format)
	}
	logger.SetLevelAndFormat(level, format)
	return nil
}

// loadSettings builds the effective settings: defaults, then the
// configuration file, then NFLREFRESH_* variables, then flags.
func (a *app) loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	settings := config.DefaultSettings()

	if a.configPath != "" {
		result := config.ParseConfig(a.configPath)
		if len(result.ParseErrors) > 0 {
			cli.PrintParseErrors(a.stderr, result.ParseErrors, a.verbose)
			return nil, exitWith(ExitParseError, nil)
		}
		if len(result.ValidationErrors) > 0 {
			cli.PrintValidationErrors(a.stderr, result.ValidationErrors, a.verbose, a.quiet)
			return nil, exitWith(ExitValidationError, nil)
		}
		var err error
		settings, err = config.ConvertToSettings(result.Data)
		if err != nil {
			return nil, exitWith(ExitValidationError, fmt.Errorf("failed to convert configuration: %w", err))
		}
	}

	if err := config.ApplyEnv(settings); err != nil {
		return nil, exitWith(ExitValidationError, err)
	}

	if f := cmd.Flags().Lookup("output-dir"); f != nil && f.Changed {
		settings.OutputDir = a.outputDir
	}
	if a.dryRun {
		settings.DryRun = true
	}

	if err := a.setupLogging(settings.Logging); err != nil {
		return nil, exitWith(ExitValidationError, err)
	}
	return settings, nil
}

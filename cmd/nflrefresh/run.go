package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridiron-data/nflrefresh/internal/cli"
	"github.com/gridiron-data/nflrefresh/internal/config"
	"github.com/gridiron-data/nflrefresh/internal/loader"
	"github.com/gridiron-data/nflrefresh/internal/logger"
	"github.com/gridiron-data/nflrefresh/internal/publish"
	"github.com/gridiron-data/nflrefresh/internal/refresh"
	"github.com/gridiron-data/nflrefresh/internal/storage"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// publisherFactory creates the post-write publishers enabled in s.
type publisherFactory func(ctx context.Context, s *config.Settings) ([]publish.Publisher, error)

const runExitCodes = `Exit codes:
  0 - Every season was refreshed
  1 - Invalid flags, configuration or request
  2 - Configuration parse error
  3 - At least one season failed`

func (a *app) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh a dataset for one or more seasons",
		Long: `Download the selected dataset for each season and write one Parquet
file per season to the output directory.

Seasons are processed in order. A failed season is reported and the
remaining seasons are still attempted.

` + runExitCodes + `

Examples:
  nflrefresh run --mode weekly --seasons 2022,2023
  nflrefresh run --mode weekly --season 2023 --weeks 1,2
  nflrefresh run --mode player_stats --config nflrefresh.yaml --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := nflstats.ParseMode(a.mode)
			if err != nil {
				return exitWith(ExitValidationError, err)
			}
			return a.runRefresh(cmd, mode)
		},
	}
	a.addRefreshFlags(cmd)
	cmd.Flags().StringVarP(&a.mode, "mode", "m", "", "Dataset to refresh: weekly or player_stats (required)")
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

// newModeCmd creates a shortcut for "run --mode <mode>".
func (a *app) newModeCmd(use string, mode nflstats.Mode, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  fmt.Sprintf("%s. Same as \"nflrefresh run --mode %s\".\n\n%s", short, mode, runExitCodes),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runRefresh(cmd, mode)
		},
	}
	a.addRefreshFlags(cmd)
	return cmd
}

func (a *app) addRefreshFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&a.configPath, "config", "c", "", "Configuration file (JSON or YAML)")
	f.StringVarP(&a.outputDir, "output-dir", "o", config.DefaultOutputDir, "Directory receiving the Parquet files")
	f.IntSliceVar(&a.seasons, "seasons", nil, "Seasons to refresh, comma separated (default: current year)")
	f.IntVar(&a.season, "season", 0, "Single season to refresh, appended to --seasons")
	f.IntSliceVar(&a.weeks, "weeks", nil, "Weeks to keep, comma separated (weekly mode only)")
	f.BoolVar(&a.dryRun, "dry-run", false, "Download and check seasons without writing files")
}

// request builds the refresh request from the season and week flags.
func (a *app) request(mode nflstats.Mode) nflstats.Request {
	seasons := append([]int(nil), a.seasons...)
	if a.season != 0 {
		seasons = append(seasons, a.season)
	}
	if len(seasons) == 0 {
		seasons = []int{a.clock.Now().Year()}
	}
	return nflstats.Request{
		Mode:    mode,
		Seasons: seasons,
		Weeks:   append([]int(nil), a.weeks...),
	}
}

func (a *app) runRefresh(cmd *cobra.Command, mode nflstats.Mode) error {
	req := a.request(mode)
	if err := req.Validate(); err != nil {
		return exitWith(ExitValidationError, err)
	}

	settings, err := a.loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	refresher, err := a.buildRefresher(ctx, settings)
	if err != nil {
		return exitWith(ExitRuntimeError, err)
	}
	defer func() {
		if cerr := refresher.Close(); cerr != nil {
			logger.Warn("failed to release resources", "error", cerr.Error())
		}
	}()

	report, err := refresher.Refresh(ctx, req)
	if err != nil {
		if errors.Is(err, nflstats.ErrInvalidRequest) {
			return exitWith(ExitValidationError, err)
		}
		return exitWith(ExitRuntimeError, err)
	}

	cli.PrintReport(a.stdout, report, cli.OutputOptions{Verbose: a.verbose, Quiet: a.quiet})
	if report.Failed() {
		return exitWith(ExitRuntimeError, nil)
	}
	return nil
}

// buildRefresher wires loaders, the Parquet writer and publishers from settings.
func (a *app) buildRefresher(ctx context.Context, s *config.Settings) (*refresh.Refresher, error) {
	loaders := make(map[nflstats.Mode]loader.Loader, len(s.Datasets))
	for mode, ds := range s.Datasets {
		l, err := loader.NewNflverse(loader.NflverseConfig{
			BaseURL:   s.BaseURL,
			Source:    ds.Source(),
			Timeout:   s.Timeout,
			UserAgent: s.UserAgent,
			Headers:   s.Headers,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring %s loader: %w", mode, err)
		}
		loaders[mode] = l
	}

	var pubs []publish.Publisher
	if !s.DryRun {
		var err error
		if pubs, err = a.newPublishers(ctx, s); err != nil {
			return nil, err
		}
	}

	opts := refresh.Options{
		OutputDir:       s.OutputDir,
		Loaders:         loaders,
		Publishers:      pubs,
		RequiredColumns: s.RequiredColumns(),
		Clock:           a.clock,
		DryRun:          s.DryRun,
	}
	if !s.DryRun {
		opts.Writer = storage.NewParquetWriter()
	}

	r, err := refresh.New(opts)
	if err != nil {
		_ = publish.CloseAll(pubs)
		return nil, err
	}
	return r, nil
}

// buildPublishers creates the S3 and Kafka publishers enabled in s.
func buildPublishers(ctx context.Context, s *config.Settings) ([]publish.Publisher, error) {
	var pubs []publish.Publisher
	if s.S3 != nil {
		p, err := publish.NewS3Publisher(ctx, publish.S3Config{
			Bucket:   s.S3.Bucket,
			Prefix:   s.S3.Prefix,
			Region:   s.S3.Region,
			Endpoint: s.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if s.Kafka != nil {
		p, err := publish.NewKafkaPublisher(publish.KafkaConfig{
			Broker:          s.Kafka.Broker,
			Topic:           s.Kafka.Topic,
			DeliveryTimeout: s.Kafka.DeliveryTimeout,
		})
		if err != nil {
			_ = publish.CloseAll(pubs)
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}

// Package refresh provides the dataset refresh procedure.
// It orchestrates, per season: Loader -> required column check -> Writer -> Publishers.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
	"github.com/gridiron-data/nflrefresh/internal/errhandling"
	"github.com/gridiron-data/nflrefresh/internal/loader"
	"github.com/gridiron-data/nflrefresh/internal/logger"
	"github.com/gridiron-data/nflrefresh/internal/pathutil"
	"github.com/gridiron-data/nflrefresh/internal/publish"
	"github.com/gridiron-data/nflrefresh/internal/storage"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// Stage names used in logs.
const (
	stageFetch    = "fetch"
	stageValidate = "validate"
	stageWrite    = "write"
	stagePublish  = "publish"
)

// DefaultRequiredColumns are checked when Options.RequiredColumns has no
// entry for a mode.
var DefaultRequiredColumns = []string{"season", "week"}

// Common errors
var (
	// ErrNoOutputDir is returned when no output directory is configured
	ErrNoOutputDir = errors.New("output directory is required")

	// ErrNoWriter is returned when writes are enabled without a writer
	ErrNoWriter = errors.New("writer is required unless dry-run is enabled")

	// ErrNoLoaders is returned when no loader is configured
	ErrNoLoaders = errors.New("at least one loader is required")
)

// Options configures a Refresher.
type Options struct {
	// OutputDir receives the Parquet files (required)
	OutputDir string

	// Loaders maps each supported mode to its data source (required)
	Loaders map[nflstats.Mode]loader.Loader

	// Writer persists datasets (required unless DryRun)
	Writer storage.Writer

	// Publishers run after each successful write
	Publishers []publish.Publisher

	// RequiredColumns overrides DefaultRequiredColumns per mode.
	// An empty, non-nil slice disables the check for that mode.
	RequiredColumns map[nflstats.Mode][]string

	// Clock dates player stats files; defaults to RealClock
	Clock Clock

	// DryRun fetches and validates but skips the write and publishers
	DryRun bool

	// NewRunID generates run identifiers; defaults to uuid.NewString
	NewRunID func() string
}

// Refresher performs dataset refreshes. Seasons are processed sequentially;
// a season failure is recorded and the next season is attempted.
type Refresher struct {
	outputDir  string
	loaders    map[nflstats.Mode]loader.Loader
	writer     storage.Writer
	publishers []publish.Publisher
	required   map[nflstats.Mode][]string
	clock      Clock
	dryRun     bool
	newRunID   func() string
}

// New creates a Refresher from opts.
func New(opts Options) (*Refresher, error) {
	if opts.OutputDir == "" {
		return nil, ErrNoOutputDir
	}
	if err := pathutil.ValidateFilePath(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	if len(opts.Loaders) == 0 {
		return nil, ErrNoLoaders
	}
	if opts.Writer == nil && !opts.DryRun {
		return nil, ErrNoWriter
	}

	r := &Refresher{
		outputDir:  opts.OutputDir,
		loaders:    opts.Loaders,
		writer:     opts.Writer,
		publishers: opts.Publishers,
		required:   opts.RequiredColumns,
		clock:      opts.Clock,
		dryRun:     opts.DryRun,
		newRunID:   opts.NewRunID,
	}
	if r.clock == nil {
		r.clock = RealClock{}
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	return r, nil
}

// Refresh downloads and persists every requested season.
//
// The only error returned wraps nflstats.ErrInvalidRequest; loader, writer
// and publisher failures are reported per season in the Report.
func (r *Refresher) Refresh(ctx context.Context, req nflstats.Request) (*nflstats.Report, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, ok := r.loaders[req.Mode]; !ok {
		return nil, fmt.Errorf("%w: no loader configured for mode %s", nflstats.ErrInvalidRequest, req.Mode)
	}

	report := &nflstats.Report{
		RunID:     r.newRunID(),
		Mode:      req.Mode,
		DryRun:    r.dryRun,
		StartedAt: r.clock.Now(),
		Results:   make([]nflstats.SeasonResult, 0, len(req.Seasons)),
	}
	rc := logger.RunContext{RunID: report.RunID, Mode: req.Mode.String(), DryRun: r.dryRun}
	logger.LogRunStart(rc, req.Seasons)
	start := time.Now()

	for _, season := range req.Seasons {
		report.Results = append(report.Results, r.refreshSeason(ctx, report.RunID, req, season))
	}

	report.CompletedAt = r.clock.Now()
	logger.LogRunEnd(rc, report.Status(), report.Succeeded(), len(report.Results)-report.Succeeded(),
		report.TotalRecords(), time.Since(start))
	return report, nil
}

// refreshSeason runs one fetch-and-persist cycle and never panics on a
// collaborator failure.
func (r *Refresher) refreshSeason(ctx context.Context, runID string, req nflstats.Request, season int) nflstats.SeasonResult {
	start := time.Now()
	rc := logger.RunContext{RunID: runID, Mode: req.Mode.String(), Season: season, DryRun: r.dryRun}
	result := nflstats.SeasonResult{Season: season}

	finish := func() nflstats.SeasonResult {
		result.Duration = time.Since(start)
		return result
	}

	ds, err := r.fetch(ctx, rc, req, season)
	if err != nil {
		result.Status = nflstats.StatusFailed
		result.Failure = r.fail(rc, stageFetch, nflstats.FailureFetch, err)
		return finish()
	}
	result.RecordCount = ds.NumRows()
	result.Columns = ds.ColumnNames()

	if missing := ds.MissingColumns(r.requiredColumns(req.Mode)); len(missing) > 0 {
		result.Status = nflstats.StatusFailed
		result.Failure = r.fail(rc, stageValidate, nflstats.FailureValidate,
			&errhandling.MissingColumnsError{Season: season, Missing: missing})
		return finish()
	}

	name, err := FileName(req.Mode, season, req.Weeks, r.clock.Now())
	if err == nil {
		result.OutputPath, err = pathutil.JoinOutput(r.outputDir, name)
	}
	if err != nil {
		result.Status = nflstats.StatusFailed
		result.Failure = r.fail(rc, stageWrite, nflstats.FailureWrite,
			&errhandling.WriteError{Season: season, Path: name, Err: err})
		return finish()
	}

	if r.dryRun {
		logger.WithRun(rc).Info("dry-run: season not written",
			slog.String("output_path", result.OutputPath),
			slog.Int("record_count", result.RecordCount),
		)
		result.Status = nflstats.StatusDryRun
		return finish()
	}

	written, err := r.write(ctx, rc, result.OutputPath, ds)
	if err != nil {
		result.Status = nflstats.StatusFailed
		result.Failure = r.fail(rc, stageWrite, nflstats.FailureWrite,
			&errhandling.WriteError{Season: season, Path: result.OutputPath, Err: err})
		return finish()
	}
	result.BytesWritten = written
	result.Status = nflstats.StatusSuccess

	logger.WithRun(rc).Info("season written",
		slog.String("output_path", result.OutputPath),
		slog.Int("record_count", result.RecordCount),
		slog.Int64("bytes", written),
	)

	result.Warnings = r.publish(ctx, rc, publish.Artifact{
		RunID:       runID,
		Mode:        req.Mode.String(),
		Season:      season,
		Path:        result.OutputPath,
		RecordCount: result.RecordCount,
		Bytes:       written,
		WrittenAt:   r.clock.Now(),
	})
	return finish()
}

func (r *Refresher) fetch(ctx context.Context, rc logger.RunContext, req nflstats.Request, season int) (*dataset.Dataset, error) {
	rc.Stage = stageFetch
	ld := r.loaders[req.Mode]
	url := ""
	if loc, ok := ld.(loader.Locator); ok {
		url = loc.URL(season)
	}
	wrap := func(err error) error {
		return &errhandling.FetchError{Season: season, Mode: req.Mode.String(), URL: url, Err: err}
	}

	// a canceled run records the remaining seasons without calling the loader
	if err := ctx.Err(); err != nil {
		return nil, wrap(errhandling.ClassifyNetworkError(err))
	}

	logger.LogStageStart(rc)
	start := time.Now()

	var weeks []int
	if req.Mode == nflstats.ModeWeekly {
		weeks = req.Weeks
	}
	ds, err := ld.Load(ctx, season, weeks)
	if err == nil && ds == nil {
		err = errhandling.NewValidationError("loader returned no dataset", nil)
	}
	if err != nil {
		return nil, wrap(err)
	}

	logger.LogStageEnd(rc, ds.NumRows(), time.Since(start), nil)
	return ds, nil
}

func (r *Refresher) write(ctx context.Context, rc logger.RunContext, path string, ds *dataset.Dataset) (int64, error) {
	rc.Stage = stageWrite
	logger.LogStageStart(rc)
	start := time.Now()

	n, err := r.writer.Write(ctx, path, ds)
	if err != nil {
		return 0, err
	}
	logger.LogStageEnd(rc, ds.NumRows(), time.Since(start), nil)
	return n, nil
}

// publish runs every publisher and returns their failures as warnings.
func (r *Refresher) publish(ctx context.Context, rc logger.RunContext, a publish.Artifact) []string {
	rc.Stage = stagePublish
	var warnings []string
	for _, p := range r.publishers {
		if err := p.Publish(ctx, a); err != nil {
			logger.WithRun(rc).Warn("publisher failed",
				slog.String("publisher", p.Name()),
				slog.String("error_code", errhandling.CodePublishFailed),
				slog.String("error", err.Error()),
			)
			warnings = append(warnings, fmt.Sprintf("%s: %v", p.Name(), err))
		}
	}
	return warnings
}

// fail logs err with full context and converts it into a report Failure.
func (r *Refresher) fail(rc logger.RunContext, stage, kind string, err error) *nflstats.Failure {
	classified := errhandling.ClassifyError(err)
	category := errhandling.CategoryFor(err)
	code := errhandling.CodeFor(err)

	ec := logger.ErrorContext{
		RunID:         rc.RunID,
		Mode:          rc.Mode,
		Season:        rc.Season,
		Stage:         stage,
		ErrorCode:     code,
		ErrorCategory: string(category),
		Err:           err,
		HTTPStatus:    classified.StatusCode,
	}
	var fetchErr *errhandling.FetchError
	if errors.As(err, &fetchErr) {
		ec.URL = fetchErr.URL
	}
	var writeErr *errhandling.WriteError
	if errors.As(err, &writeErr) {
		ec.OutputPath = writeErr.Path
	}
	logger.LogError("season failed", ec)

	return &nflstats.Failure{
		Kind:       kind,
		Code:       code,
		Category:   string(category),
		StatusCode: classified.StatusCode,
		Message:    err.Error(),
	}
}

func (r *Refresher) requiredColumns(mode nflstats.Mode) []string {
	if cols, ok := r.required[mode]; ok {
		return cols
	}
	return DefaultRequiredColumns
}

// Close releases loaders and publishers.
func (r *Refresher) Close() error {
	var errs []error
	for mode, ld := range r.loaders {
		if err := ld.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s loader: %w", mode, err))
		}
	}
	if err := publish.CloseAll(r.publishers); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
	"github.com/gridiron-data/nflrefresh/internal/errhandling"
	"github.com/gridiron-data/nflrefresh/internal/loader"
	"github.com/gridiron-data/nflrefresh/internal/publish"
	"github.com/gridiron-data/nflrefresh/internal/storage"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// =============================================================================
// Fakes
// =============================================================================

type loadCall struct {
	season int
	weeks  []int
}

// fakeLoader returns n synthetic rows per season, or the configured error.
type fakeLoader struct {
	mu       sync.Mutex
	rows     int
	failures map[int]error
	columns  []string
	calls    []loadCall
	closed   bool
}

func (f *fakeLoader) Load(_ context.Context, season int, weeks []int) (*dataset.Dataset, error) {
	f.mu.Lock()
	f.calls = append(f.calls, loadCall{season: season, weeks: weeks})
	f.mu.Unlock()

	if err, ok := f.failures[season]; ok {
		return nil, err
	}

	names := f.columns
	if names == nil {
		names = []string{"season", "week", "team", "passing_yards"}
	}
	cols := make([]dataset.Column, len(names))
	for i, n := range names {
		cols[i] = dataset.Column{Name: n, Kind: dataset.KindInt}
	}
	rows := make([][]any, f.rows)
	for i := range rows {
		row := make([]any, len(cols))
		for j := range row {
			row[j] = int64(season + i + j)
		}
		rows[i] = row
	}
	return dataset.New(cols, rows)
}

func (f *fakeLoader) URL(season int) string {
	return fmt.Sprintf("https://example.test/stats_team_week_%d.csv", season)
}

func (f *fakeLoader) Close() error {
	f.closed = true
	return nil
}

var (
	_ loader.Loader  = (*fakeLoader)(nil)
	_ loader.Locator = (*fakeLoader)(nil)
)

type failingWriter struct {
	err error
}

func (w *failingWriter) Write(context.Context, string, *dataset.Dataset) (int64, error) {
	return 0, w.err
}

var _ storage.Writer = (*failingWriter)(nil)

type recordingPublisher struct {
	name      string
	err       error
	artifacts []publish.Artifact
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, a publish.Artifact) error {
	p.artifacts = append(p.artifacts, a)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

var _ publish.Publisher = (*recordingPublisher)(nil)

var testDay = time.Date(2024, 10, 15, 9, 30, 0, 0, time.Local)

func newRefresher(t *testing.T, dir string, ld loader.Loader, mutate func(*Options)) *Refresher {
	t.Helper()
	opts := Options{
		OutputDir: dir,
		Loaders: map[nflstats.Mode]loader.Loader{
			nflstats.ModeWeekly:      ld,
			nflstats.ModePlayerStats: ld,
		},
		Writer:   storage.NewParquetWriter(),
		Clock:    FixedClock{T: testDay},
		NewRunID: func() string { return "run-test" },
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := New(opts)
	require.NoError(t, err)
	return r
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// =============================================================================
// Construction and request validation
// =============================================================================

func TestNew_Validation(t *testing.T) {
	ld := &fakeLoader{}
	loaders := map[nflstats.Mode]loader.Loader{nflstats.ModeWeekly: ld}

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"missing output dir", Options{Loaders: loaders, Writer: storage.NewParquetWriter()}, ErrNoOutputDir},
		{"missing loaders", Options{OutputDir: "data", Writer: storage.NewParquetWriter()}, ErrNoLoaders},
		{"missing writer", Options{OutputDir: "data", Loaders: loaders}, ErrNoWriter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := New(Options{OutputDir: "data/../../etc", Loaders: loaders, Writer: storage.NewParquetWriter()})
	assert.Error(t, err)

	r, err := New(Options{OutputDir: "data", Loaders: loaders, DryRun: true})
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRefresh_InvalidRequest(t *testing.T) {
	dir := t.TempDir()
	r := newRefresher(t, dir, &fakeLoader{rows: 1}, nil)

	tests := []struct {
		name string
		req  nflstats.Request
	}{
		{"no seasons", nflstats.Request{Mode: nflstats.ModeWeekly}},
		{"zero week", nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}, Weeks: []int{0}}},
		{"weeks with player stats", nflstats.Request{Mode: nflstats.ModePlayerStats, Seasons: []int{2023}, Weeks: []int{1}}},
		{"unknown mode", nflstats.Request{Mode: "fantasy", Seasons: []int{2023}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := r.Refresh(context.Background(), tt.req)
			assert.ErrorIs(t, err, nflstats.ErrInvalidRequest)
			assert.Nil(t, report)
		})
	}
	assert.Empty(t, dirEntries(t, dir))
}

func TestRefresh_ModeWithoutLoader(t *testing.T) {
	r, err := New(Options{
		OutputDir: t.TempDir(),
		Loaders:   map[nflstats.Mode]loader.Loader{nflstats.ModeWeekly: &fakeLoader{}},
		Writer:    storage.NewParquetWriter(),
	})
	require.NoError(t, err)

	_, err = r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModePlayerStats, Seasons: []int{2023}})
	assert.ErrorIs(t, err, nflstats.ErrInvalidRequest)
}

// =============================================================================
// Success
// =============================================================================

func TestRefresh_WeeklySuccess(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 32}
	r := newRefresher(t, dir, ld, nil)

	report, err := r.Refresh(context.Background(), nflstats.Request{
		Mode:    nflstats.ModeWeekly,
		Seasons: []int{2023},
		Weeks:   []int{1, 2},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	assert.Equal(t, nflstats.StatusSuccess, res.Status)
	assert.Nil(t, res.Failure)
	assert.Equal(t, filepath.Join(dir, "weekly_2023_weeks_1_2.parquet"), res.OutputPath)
	assert.Equal(t, 32, res.RecordCount)
	assert.Positive(t, res.BytesWritten)
	assert.Equal(t, "run-test", report.RunID)
	assert.False(t, report.Failed())

	assert.Equal(t, []string{"weekly_2023_weeks_1_2.parquet"}, dirEntries(t, dir))
	assert.Equal(t, []loadCall{{season: 2023, weeks: []int{1, 2}}}, ld.calls)

	got, err := storage.ReadFile(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 32, got.NumRows())
	assert.Empty(t, got.MissingColumns(DefaultRequiredColumns))
	assert.ElementsMatch(t, res.Columns, got.ColumnNames())
}

func TestRefresh_PlayerStatsNamingIsStablePerDay(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 5}
	r := newRefresher(t, dir, ld, nil)
	req := nflstats.Request{Mode: nflstats.ModePlayerStats, Seasons: []int{2024}}

	first, err := r.Refresh(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Refresh(context.Background(), req)
	require.NoError(t, err)

	want := filepath.Join(dir, "player_stats_2024_20241015.parquet")
	assert.Equal(t, want, first.Results[0].OutputPath)
	assert.Equal(t, want, second.Results[0].OutputPath)
	assert.Equal(t, []string{"player_stats_2024_20241015.parquet"}, dirEntries(t, dir))

	// player stats never receive a week filter
	for _, c := range ld.calls {
		assert.Nil(t, c.weeks)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	dir := t.TempDir()
	r := newRefresher(t, dir, &fakeLoader{rows: 17}, nil)
	req := nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}}

	var shapes [][2]int
	for i := 0; i < 2; i++ {
		report, err := r.Refresh(context.Background(), req)
		require.NoError(t, err)
		ds, err := storage.ReadFile(report.Results[0].OutputPath)
		require.NoError(t, err)
		shapes = append(shapes, [2]int{ds.NumRows(), ds.NumColumns()})
	}
	assert.Equal(t, shapes[0], shapes[1])
	assert.Equal(t, [2]int{17, 4}, shapes[0])
}

func TestRefresh_CreatesOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "raw")
	r := newRefresher(t, dir, &fakeLoader{rows: 1}, nil)

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.FileExists(t, filepath.Join(dir, "weekly_2023.parquet"))
}

// =============================================================================
// Failures
// =============================================================================

func TestRefresh_FetchFailure(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 3, failures: map[int]error{
		2031: errhandling.ClassifyHTTPStatus(404, "404 Not Found"),
	}}
	r := newRefresher(t, dir, ld, nil)

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2031}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	require.NotNil(t, res.Failure)
	assert.Equal(t, 2031, res.Season)
	assert.Equal(t, nflstats.StatusFailed, res.Status)
	assert.Equal(t, nflstats.FailureFetch, res.Failure.Kind)
	assert.Equal(t, errhandling.CodeFetchFailed, res.Failure.Code)
	assert.Equal(t, string(errhandling.CategoryNotFound), res.Failure.Category)
	assert.Equal(t, 404, res.Failure.StatusCode)
	assert.Contains(t, res.Failure.Message, "2031")
	assert.Empty(t, res.OutputPath)
	assert.Empty(t, dirEntries(t, dir))
	assert.True(t, report.Failed())
}

func TestRefresh_WriteFailure(t *testing.T) {
	t.Run("writer error", func(t *testing.T) {
		dir := t.TempDir()
		diskFull := errhandling.ClassifyStorageError(errors.New("no space left on device"))
		r := newRefresher(t, dir, &fakeLoader{rows: 3}, func(o *Options) {
			o.Writer = &failingWriter{err: diskFull}
		})

		report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
		require.NoError(t, err)

		res := report.Results[0]
		require.NotNil(t, res.Failure)
		assert.Equal(t, nflstats.FailureWrite, res.Failure.Kind)
		assert.Equal(t, errhandling.CodeWriteFailed, res.Failure.Code)
		assert.Equal(t, string(errhandling.CategoryStorage), res.Failure.Category)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("output directory is a file", func(t *testing.T) {
		base := t.TempDir()
		blocker := filepath.Join(base, "raw")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		r := newRefresher(t, blocker, &fakeLoader{rows: 3}, nil)
		report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
		require.NoError(t, err)

		res := report.Results[0]
		require.NotNil(t, res.Failure)
		assert.Equal(t, nflstats.FailureWrite, res.Failure.Kind)
		assert.NoFileExists(t, filepath.Join(blocker, "weekly_2023.parquet"))
		assert.Equal(t, []string{"raw"}, dirEntries(t, base))
	})
}

func TestRefresh_MissingRequiredColumns(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 3, columns: []string{"season", "team"}}
	r := newRefresher(t, dir, ld, nil)

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
	require.NoError(t, err)

	res := report.Results[0]
	require.NotNil(t, res.Failure)
	assert.Equal(t, nflstats.FailureValidate, res.Failure.Kind)
	assert.Equal(t, errhandling.CodeValidationFailed, res.Failure.Code)
	assert.Contains(t, res.Failure.Message, "week")
	assert.Empty(t, dirEntries(t, dir))
}

func TestRefresh_RequiredColumnsOverride(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 3, columns: []string{"player_id", "season"}}
	r := newRefresher(t, dir, ld, func(o *Options) {
		o.RequiredColumns = map[nflstats.Mode][]string{
			nflstats.ModePlayerStats: {"player_id", "season"},
		}
	})

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModePlayerStats, Seasons: []int{2023}})
	require.NoError(t, err)
	assert.False(t, report.Failed())
}

func TestRefresh_MultiSeasonContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 8, failures: map[int]error{
		2022: errhandling.NewNetworkError("connection reset", nil),
	}}
	r := newRefresher(t, dir, ld, nil)

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2022, 2023}})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, 2022, report.Results[0].Season)
	assert.False(t, report.Results[0].OK())
	assert.Equal(t, string(errhandling.CategoryNetwork), report.Results[0].Failure.Category)

	assert.Equal(t, 2023, report.Results[1].Season)
	assert.True(t, report.Results[1].OK())
	assert.Equal(t, 8, report.Results[1].RecordCount)

	assert.Equal(t, "partial", report.Status())
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, []string{"weekly_2023.parquet"}, dirEntries(t, dir))
}

func TestRefresh_ContextCanceled(t *testing.T) {
	dir := t.TempDir()
	ld := &fakeLoader{rows: 2}
	r := newRefresher(t, dir, ld, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Refresh(ctx, nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2022, 2023}})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		require.NotNil(t, res.Failure)
		assert.Equal(t, nflstats.FailureFetch, res.Failure.Kind)
		assert.Equal(t, string(errhandling.CategoryNetwork), res.Failure.Category)
	}
	assert.Empty(t, ld.calls, "loader must not be called after cancellation")
	assert.Empty(t, dirEntries(t, dir))
}

// =============================================================================
// Dry run and publishers
// =============================================================================

func TestRefresh_DryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	pub := &recordingPublisher{name: "rec"}
	r := newRefresher(t, dir, &fakeLoader{rows: 12}, func(o *Options) {
		o.DryRun = true
		o.Writer = nil
		o.Publishers = []publish.Publisher{pub}
	})

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
	require.NoError(t, err)

	res := report.Results[0]
	assert.True(t, report.DryRun)
	assert.Equal(t, nflstats.StatusDryRun, res.Status)
	assert.Equal(t, filepath.Join(dir, "weekly_2023.parquet"), res.OutputPath)
	assert.Equal(t, 12, res.RecordCount)
	assert.Zero(t, res.BytesWritten)
	assert.Empty(t, pub.artifacts)
	assert.NoDirExists(t, dir)
}

func TestRefresh_Publishers(t *testing.T) {
	dir := t.TempDir()
	ok := &recordingPublisher{name: "ok"}
	broken := &recordingPublisher{name: "s3", err: errors.New("AccessDenied")}
	r := newRefresher(t, dir, &fakeLoader{rows: 4}, func(o *Options) {
		o.Publishers = []publish.Publisher{broken, ok}
	})

	report, err := r.Refresh(context.Background(), nflstats.Request{Mode: nflstats.ModeWeekly, Seasons: []int{2023}})
	require.NoError(t, err)

	res := report.Results[0]
	assert.True(t, res.OK(), "publisher failures must not fail the season")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "AccessDenied")

	require.Len(t, ok.artifacts, 1)
	a := ok.artifacts[0]
	assert.Equal(t, "run-test", a.RunID)
	assert.Equal(t, "weekly", a.Mode)
	assert.Equal(t, 2023, a.Season)
	assert.Equal(t, res.OutputPath, a.Path)
	assert.Equal(t, 4, a.RecordCount)
	assert.Equal(t, res.BytesWritten, a.Bytes)
}

func TestRefresher_Close(t *testing.T) {
	ld := &fakeLoader{}
	r := newRefresher(t, t.TempDir(), ld, nil)
	require.NoError(t, r.Close())
	assert.True(t, ld.closed)
}

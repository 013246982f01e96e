package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridiron-data/nflrefresh/internal/config"
	"github.com/gridiron-data/nflrefresh/internal/publish"
	"github.com/gridiron-data/nflrefresh/internal/refresh"
	"github.com/gridiron-data/nflrefresh/internal/storage"
)

// testFixturePath returns the path to test fixtures
func testFixturePath(filename string) string {
	return filepath.Join("..", "..", "internal", "config", "testdata", filename)
}

var testNow = time.Date(2024, 9, 10, 12, 0, 0, 0, time.Local)

// runCLI runs the command tree in-process and returns stdout, stderr, and exit code
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	a := &app{
		stdout: &stdoutBuf,
		stderr: &stderrBuf,
		clock:  refresh.FixedClock{T: testNow},
		newPublishers: func(context.Context, *config.Settings) ([]publish.Publisher, error) {
			return nil, nil
		},
	}
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	exitCode = a.execute(ctx, args)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// nflverseServer serves stats_team and stats_player assets; missing seasons return 404.
func nflverseServer(t *testing.T) *httptest.Server {
	t.Helper()
	assets := map[string]string{
		"/stats_team/stats_team_week_2023.csv": "season,week,team,points\n" +
			"2023,1,KC,20\n2023,1,DET,21\n2023,2,KC,17\n2023,2,DET,20\n",
		"/stats_player/stats_player_week_2024.csv": "player_id,season,week,passing_yards\n" +
			"00-0033873,2024,1,291\n00-0036442,2024,1,NA\n",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := assets[r.URL.Path]
		if !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a YAML configuration pointing at baseURL.
func writeConfig(t *testing.T, baseURL, outputDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nflrefresh.yaml")
	content := fmt.Sprintf("schemaVersion: \"1.0\"\nrefresh:\n  baseUrl: %s\n  outputDir: %s\n  timeout: 5s\n", baseURL, outputDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func parquetFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

// =============================================================================
// Help and version
// =============================================================================

func TestCLI_Help(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "--help")

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}

	for _, cmd := range []string{"nflrefresh", "run", "weekly", "player-stats", "inspect", "validate", "schedule", "version"} {
		if !strings.Contains(stdout, cmd) {
			t.Errorf("expected help to contain %q", cmd)
		}
	}
}

func TestCLI_Version(t *testing.T) {
	stdout, _, exitCode := runCLI(t, "version")

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code 0, got %d", exitCode)
	}
	if !strings.Contains(stdout, "Version: dev") {
		t.Errorf("unexpected version output: %s", stdout)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "refresh-all")

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Errorf("expected unknown command error, got: %s", stderr)
	}
}

// =============================================================================
// validate
// =============================================================================

func TestCLI_ValidateValidYAML(t *testing.T) {
	stdout, stderr, exitCode := runCLI(t, "validate", testFixturePath("valid-config.yaml"))

	if exitCode != ExitSuccess {
		t.Errorf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}

	if !strings.Contains(stdout, "✓ Configuration is valid (format: yaml)") {
		t.Errorf("unexpected output: %s", stdout)
	}
}

func TestCLI_ValidateVerbosePrintsSummary(t *testing.T) {
	stdout, stderr, exitCode := runCLI(t, "validate", "--verbose", testFixturePath("valid-config.yaml"))

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	for _, want := range []string{"Sections: schemaVersion, refresh, datasets, publish, schedules, logging", "Output directory: /var/lib/nflrefresh/raw", "S3: s3://gridiron-analytics/nfl/raw", "Schedule weekly-tuesday"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output: %s", want, stdout)
		}
	}
}

func TestCLI_ValidateInvalidJSON(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "validate", testFixturePath("invalid-json.json"))

	if exitCode != ExitParseError {
		t.Errorf("expected exit code %d (parse error), got %d", ExitParseError, exitCode)
	}
	if !strings.Contains(stderr, "Parse errors") || !strings.Contains(stderr, "[refresh]") {
		t.Errorf("expected a parse error located in the refresh section, got: %s", stderr)
	}
}

func TestCLI_ValidateSchemaErrors(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "validate", testFixturePath("invalid-schema.yaml"))

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d (validation error), got %d", ExitValidationError, exitCode)
	}
	if !strings.Contains(stderr, "Validation errors") {
		t.Errorf("expected validation errors in stderr, got: %s", stderr)
	}
}

func TestCLI_ValidateBadCronExpression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron.yaml")
	content := "schedules:\n  - id: broken\n    cron: \"every tuesday\"\n    mode: weekly\n    seasons: [2024]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	_, stderr, exitCode := runCLI(t, "validate", path)

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
	if !strings.Contains(stderr, "schedule broken") {
		t.Errorf("expected schedule error, got: %s", stderr)
	}
}

func TestCLI_ValidateMissingArgument(t *testing.T) {
	_, _, exitCode := runCLI(t, "validate")

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
}

// =============================================================================
// run / weekly / player-stats
// =============================================================================

func TestCLI_RunRequiresMode(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "run", "--seasons", "2023")

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
	if !strings.Contains(stderr, "mode") {
		t.Errorf("expected mode error, got: %s", stderr)
	}
}

func TestCLI_RunInvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown mode", []string{"run", "--mode", "fantasy", "--seasons", "2023"}},
		{"season too early", []string{"weekly", "--season", "1980"}},
		{"weeks in player stats mode", []string{"player-stats", "--season", "2023", "--weeks", "1"}},
		{"non-positive week", []string{"weekly", "--season", "2023", "--weeks", "0"}},
		{"non-numeric season", []string{"weekly", "--seasons", "last"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			_, stderr, exitCode := runCLI(t, append(tt.args, "--output-dir", dir)...)

			if exitCode != ExitValidationError {
				t.Errorf("expected exit code %d, got %d\nstderr: %s", ExitValidationError, exitCode, stderr)
			}
			if files := parquetFiles(t, dir); len(files) != 0 {
				t.Errorf("no file should be written, got %v", files)
			}
		})
	}
}

func TestCLI_WeeklyContinuesAfterFailedSeason(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)

	stdout, stderr, exitCode := runCLI(t, "weekly", "--config", cfg, "--seasons", "2022,2023")

	if exitCode != ExitRuntimeError {
		t.Fatalf("expected exit code %d, got %d\nstdout: %s\nstderr: %s", ExitRuntimeError, exitCode, stdout, stderr)
	}
	if !strings.Contains(stdout, "✗ 2022") || !strings.Contains(stdout, "✓ 2023") {
		t.Errorf("expected both seasons in report, got: %s", stdout)
	}

	files := parquetFiles(t, dir)
	if len(files) != 1 || filepath.Base(files[0]) != "weekly_2023.parquet" {
		t.Fatalf("expected only weekly_2023.parquet, got %v", files)
	}
	ds, err := storage.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if ds.NumRows() != 4 {
		t.Errorf("expected 4 rows, got %d", ds.NumRows())
	}
}

func TestCLI_WeeklyWithWeeks(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)

	_, stderr, exitCode := runCLI(t, "run", "--mode", "weekly", "--config", cfg, "--season", "2023", "--weeks", "2")

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	path := filepath.Join(dir, "weekly_2023_weeks_2.parquet")
	ds, err := storage.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if ds.NumRows() != 2 {
		t.Errorf("expected 2 rows for week 2, got %d", ds.NumRows())
	}
}

func TestCLI_PlayerStatsUsesClockDate(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)

	// player stats rows carry season and week, the default required columns
	_, stderr, exitCode := runCLI(t, "player-stats", "--config", cfg, "--season", "2024")

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "player_stats_2024_20240910.parquet")); err != nil {
		t.Errorf("expected dated player stats file: %v", err)
	}
}

func TestCLI_DefaultSeasonIsCurrentYear(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)

	// the fixed clock is in 2024, which the server serves for player stats
	stdout, stderr, exitCode := runCLI(t, "player-stats", "--config", cfg)

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if !strings.Contains(stdout, "2024") {
		t.Errorf("expected the 2024 season in the report, got: %s", stdout)
	}
}

func TestCLI_DryRunWritesNothing(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)

	stdout, stderr, exitCode := runCLI(t, "weekly", "--config", cfg, "--season", "2023", "--dry-run")

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if !strings.Contains(stdout, "would write weekly_2023.parquet") {
		t.Errorf("expected would-be path in output, got: %s", stdout)
	}
	if files := parquetFiles(t, dir); len(files) != 0 {
		t.Errorf("dry run wrote files: %v", files)
	}
}

func TestCLI_OutputDirFlagOverridesConfig(t *testing.T) {
	srv := nflverseServer(t)
	cfgDir := t.TempDir()
	flagDir := t.TempDir()
	cfg := writeConfig(t, srv.URL, cfgDir)

	_, stderr, exitCode := runCLI(t, "weekly", "--config", cfg, "--season", "2023", "--output-dir", flagDir)

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if len(parquetFiles(t, cfgDir)) != 0 || len(parquetFiles(t, flagDir)) != 1 {
		t.Error("expected the file in the --output-dir directory only")
	}
}

func TestCLI_EnvironmentOverridesConfig(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	t.Setenv(config.EnvBaseURL, srv.URL)

	_, stderr, exitCode := runCLI(t, "weekly", "--season", "2023", "--output-dir", dir)

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if len(parquetFiles(t, dir)) != 1 {
		t.Error("expected one file downloaded from the environment base URL")
	}
}

func TestCLI_RunConfigParseError(t *testing.T) {
	_, _, exitCode := runCLI(t, "weekly", "--season", "2023", "--config", testFixturePath("invalid-yaml.yaml"))

	if exitCode != ExitParseError {
		t.Errorf("expected exit code %d, got %d", ExitParseError, exitCode)
	}
}

func TestCLI_RunLogFile(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)
	logPath := filepath.Join(t.TempDir(), "refresh.log")

	_, stderr, exitCode := runCLI(t, "--log-file", logPath, "--log-format", "human", "weekly", "--config", cfg, "--season", "2023")

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"season written"`) {
		t.Errorf("expected JSON season log in file, got: %s", data)
	}
}

func TestCLI_InvalidLogFormat(t *testing.T) {
	_, _, exitCode := runCLI(t, "--log-format", "xml", "version")

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
}

// =============================================================================
// inspect
// =============================================================================

func TestCLI_InspectWrittenFile(t *testing.T) {
	srv := nflverseServer(t)
	dir := t.TempDir()
	cfg := writeConfig(t, srv.URL, dir)
	if _, stderr, code := runCLI(t, "weekly", "--config", cfg, "--season", "2023"); code != ExitSuccess {
		t.Fatalf("refresh failed with %d: %s", code, stderr)
	}

	stdout, stderr, exitCode := runCLI(t, "inspect", "--rows", "1", filepath.Join(dir, "weekly_2023.parquet"))

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	for _, want := range []string{"Rows: 4", "Columns: 4", "team", "(3 more rows)"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("expected %q in output: %s", want, stdout)
		}
	}
}

func TestCLI_InspectMissingFile(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "inspect", filepath.Join(t.TempDir(), "missing.parquet"))

	if exitCode != ExitRuntimeError {
		t.Errorf("expected exit code %d, got %d", ExitRuntimeError, exitCode)
	}
	if stderr == "" {
		t.Error("expected an error message")
	}
}

// =============================================================================
// schedule
// =============================================================================

func TestCLI_ScheduleWithoutJobs(t *testing.T) {
	_, stderr, exitCode := runCLI(t, "schedule", "--output-dir", t.TempDir())

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
	if !strings.Contains(stderr, "no jobs to schedule") {
		t.Errorf("unexpected stderr: %s", stderr)
	}
}

func TestCLI_ScheduleInvalidCron(t *testing.T) {
	_, _, exitCode := runCLI(t, "schedule", "--cron", "whenever", "--season", "2024", "--output-dir", t.TempDir())

	if exitCode != ExitValidationError {
		t.Errorf("expected exit code %d, got %d", ExitValidationError, exitCode)
	}
}

func TestCLI_ScheduleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stdout, stderr, exitCode := runCLIContext(t, ctx, "schedule", "--cron", "@every 1h", "--season", "2024", "--output-dir", t.TempDir())

	if exitCode != ExitSuccess {
		t.Fatalf("expected exit code %d, got %d\nstderr: %s", ExitSuccess, exitCode, stderr)
	}
	if !strings.Contains(stdout, "Scheduler started with 1 job(s)") || !strings.Contains(stdout, "✓ Scheduler stopped") {
		t.Errorf("unexpected output: %s", stdout)
	}
}

// Package logger provides structured logging functionality.
// It wraps the standard log/slog package for consistent logging across refresh runs.
//
// Run helpers (LogRunStart, LogRunEnd, LogStageStart, LogStageEnd, LogError)
// attach the same snake_case fields everywhere: run_id, mode, season, stage.
//
// The package supports two output formats:
//   - JSON (default): Machine-readable structured logging
//   - Human: Console output with colors and status prefixes
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the default logger instance.
var Logger *slog.Logger

var (
	mu     sync.Mutex
	output io.Writer = os.Stdout
	level            = slog.LevelInfo
	format           = FormatJSON
)

func init() {
	Logger = newLogger(output, level, format)
}

// OutputFormat represents the log output format
type OutputFormat int

const (
	// FormatJSON is the default machine-readable JSON format
	FormatJSON OutputFormat = iota
	// FormatHuman is a human-readable console format with colors and prefixes
	FormatHuman
)

// ParseFormat converts "json" or "human" into an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "human", "text", "console":
		return FormatHuman, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q (expected json or human)", s)
	}
}

func newHandler(w io.Writer, lvl slog.Level, f OutputFormat) slog.Handler {
	if f == FormatHuman {
		return NewHumanHandler(w, &HumanHandlerOptions{Level: lvl, UseColors: isTerminal(w)})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
}

func newLogger(w io.Writer, lvl slog.Level, f OutputFormat) *slog.Logger {
	return slog.New(newHandler(w, lvl, f))
}

// SetLevel configures the logging level, keeping the current format and output.
func SetLevel(lvl slog.Level) {
	SetLevelAndFormat(lvl, currentFormat())
}

// SetFormat sets the log output format, keeping the current level and output.
func SetFormat(f OutputFormat) {
	mu.Lock()
	lvl := level
	mu.Unlock()
	SetLevelAndFormat(lvl, f)
}

// SetLevelAndFormat sets both the log level and format.
func SetLevelAndFormat(lvl slog.Level, f OutputFormat) {
	mu.Lock()
	defer mu.Unlock()
	level, format = lvl, f
	Logger = newLogger(output, level, format)
}

// SetOutput redirects console logging to w. Tests use it to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	Logger = newLogger(output, level, format)
}

func currentFormat() OutputFormat {
	mu.Lock()
	defer mu.Unlock()
	return format
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// =============================================================================
// Run Context Types
// =============================================================================

// RunContext identifies the refresh being logged.
type RunContext struct {
	// RunID is the unique identifier of the refresh run (required)
	RunID string
	// Mode is the dataset mode (weekly, player_stats)
	Mode string
	// Season is the season being processed (0 for run-level logs)
	Season int
	// Stage is the current stage (fetch, validate, write, publish)
	Stage string
	// DryRun indicates that nothing will be written
	DryRun bool
}

// ErrorContext contains structured context for error logging.
// Use this with LogError() for consistent, actionable error logs.
type ErrorContext struct {
	RunID  string
	Mode   string
	Season int
	Stage  string

	// Error details
	ErrorCode     string
	ErrorCategory string
	Err           error

	// Contextual information
	URL        string
	OutputPath string
	HTTPStatus int
	Duration   time.Duration
}

// WithRun returns a logger with run context attached.
func WithRun(rc RunContext) *slog.Logger {
	return Logger.With(buildContextAttrs(rc)...)
}

// LogRunStart logs the start of a refresh run.
func LogRunStart(rc RunContext, seasons []int) {
	attrs := buildContextAttrs(rc)
	attrs = append(attrs, slog.Any("seasons", seasons))
	Logger.Info("refresh started", attrs...)
}

// LogRunEnd logs the completion of a refresh run with its aggregate outcome.
func LogRunEnd(rc RunContext, status string, succeeded, failed, records int, duration time.Duration) {
	attrs := buildContextAttrs(rc)
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("seasons_succeeded", succeeded),
		slog.Int("seasons_failed", failed),
		slog.Int("record_count", records),
		slog.Duration("duration", duration),
	)
	if failed > 0 {
		Logger.Warn("refresh finished with failures", attrs...)
		return
	}
	Logger.Info("refresh completed", attrs...)
}

// LogStageStart logs the start of a stage for one season.
func LogStageStart(rc RunContext) {
	Logger.Debug("stage started", buildContextAttrs(rc)...)
}

// LogStageEnd logs the completion of a stage.
// If err is non-nil, logs as an error with error details.
func LogStageEnd(rc RunContext, recordCount int, duration time.Duration, err error) {
	attrs := buildContextAttrs(rc)
	attrs = append(attrs,
		slog.Int("record_count", recordCount),
		slog.Duration("duration", duration),
	)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Debug("stage completed", attrs...)
}

// LogError logs an error with full run context and the unwrapped error chain.
func LogError(message string, ec ErrorContext) {
	attrs := buildContextAttrs(RunContext{RunID: ec.RunID, Mode: ec.Mode, Season: ec.Season, Stage: ec.Stage})

	if ec.ErrorCode != "" {
		attrs = append(attrs, slog.String("error_code", ec.ErrorCode))
	}
	if ec.ErrorCategory != "" {
		attrs = append(attrs, slog.String("error_category", ec.ErrorCategory))
	}
	if ec.Err != nil {
		attrs = append(attrs,
			slog.String("error", ec.Err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", ec.Err)),
		)
		if chain := errorChain(ec.Err); len(chain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
		}
	}
	if ec.URL != "" {
		attrs = append(attrs, slog.String("url", ec.URL))
	}
	if ec.OutputPath != "" {
		attrs = append(attrs, slog.String("output_path", ec.OutputPath))
	}
	if ec.HTTPStatus > 0 {
		attrs = append(attrs, slog.Int("http_status", ec.HTTPStatus))
	}
	if ec.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", ec.Duration))
	}

	Logger.Error(message, attrs...)
}

func errorChain(err error) []string {
	chain := []string{err.Error()}
	for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
		chain = append(chain, cur.Error())
	}
	return chain
}

// buildContextAttrs builds slog attributes from a RunContext.
// Only non-empty fields are included.
func buildContextAttrs(rc RunContext) []any {
	attrs := make([]any, 0, 5)
	if rc.RunID != "" {
		attrs = append(attrs, slog.String("run_id", rc.RunID))
	}
	if rc.Mode != "" {
		attrs = append(attrs, slog.String("mode", rc.Mode))
	}
	if rc.Season > 0 {
		attrs = append(attrs, slog.Int("season", rc.Season))
	}
	if rc.Stage != "" {
		attrs = append(attrs, slog.String("stage", rc.Stage))
	}
	if rc.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	return attrs
}

// isTerminal returns true if the writer is a terminal (supports colors)
func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil {
			return false
		}
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// formatName returns the name of the output format.
func formatName(f OutputFormat) string {
	if f == FormatHuman {
		return "human"
	}
	return "json"
}

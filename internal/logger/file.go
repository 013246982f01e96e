package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// logFile holds the currently open log file (if any)
var logFile *os.File

// maxLogFileSize is the size at which an existing log file is rotated (10MB)
const maxLogFileSize = 10 * 1024 * 1024

// rotateLogFile renames path with a timestamp suffix when it exceeds maxLogFileSize.
func rotateLogFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking log file size: %w", err)
	}
	if info.Size() < maxLogFileSize {
		return nil
	}
	rotated := fmt.Sprintf("%s.%s", path, time.Now().Format("20060102-150405"))
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotating log file: %w", err)
	}
	return nil
}

// SetLogFile configures logging to write to both the console output and path.
// File logs are always JSON. Returns an error if the file cannot be opened.
func SetLogFile(path string, lvl slog.Level, consoleFormat OutputFormat) error {
	CloseLogFile()

	if err := rotateLogFile(path); err != nil {
		Warn("log rotation failed", slog.String("error", err.Error()))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	mu.Lock()
	logFile = f
	level, format = lvl, consoleFormat
	Logger = slog.New(&dualHandler{
		console: newHandler(output, lvl, consoleFormat),
		file:    slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl}),
	})
	mu.Unlock()

	Debug("log file opened",
		slog.String("path", path),
		slog.String("console_format", formatName(consoleFormat)),
	)
	return nil
}

// CloseLogFile closes the current log file if one is open.
func CloseLogFile() {
	mu.Lock()
	f := logFile
	logFile = nil
	if f != nil {
		Logger = newLogger(output, level, format)
	}
	mu.Unlock()
	if f == nil {
		return
	}
	if err := f.Sync(); err != nil {
		Warn("failed to sync log file", slog.String("error", err.Error()))
	}
	if err := f.Close(); err != nil {
		Warn("failed to close log file", slog.String("error", err.Error()))
	}
}

// dualHandler is a slog.Handler that writes to both console and file handlers.
type dualHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (d *dualHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return d.console.Enabled(ctx, lvl) || d.file.Enabled(ctx, lvl)
}

func (d *dualHandler) Handle(ctx context.Context, r slog.Record) error {
	if d.console.Enabled(ctx, r.Level) {
		if err := d.console.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	if d.file.Enabled(ctx, r.Level) {
		return d.file.Handle(ctx, r)
	}
	return nil
}

func (d *dualHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dualHandler{console: d.console.WithAttrs(attrs), file: d.file.WithAttrs(attrs)}
}

func (d *dualHandler) WithGroup(name string) slog.Handler {
	return &dualHandler{console: d.console.WithGroup(name), file: d.file.WithGroup(name)}
}

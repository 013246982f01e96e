package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// maxInlineAttrs caps the attributes printed on one human log line.
const maxInlineAttrs = 6

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
)

var successWords = []string{"completed", "written", "succeeded", "published", "uploaded"}

// HumanHandlerOptions configures the human-readable log handler.
type HumanHandlerOptions struct {
	// Level is the minimum log level to output
	Level slog.Level
	// UseColors enables ANSI color codes
	UseColors bool
}

// HumanHandler is a slog handler that outputs one readable line per record:
//
//	15:04:05 ✓ season written season=2023 record_count=544 output_path=data/raw/weekly_2023.parquet
type HumanHandler struct {
	opts   HumanHandlerOptions
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	groups []string
}

// NewHumanHandler creates a new human-readable log handler.
func NewHumanHandler(w io.Writer, opts *HumanHandlerOptions) *HumanHandler {
	if opts == nil {
		opts = &HumanHandlerOptions{Level: slog.LevelInfo}
	}
	return &HumanHandler{opts: *opts, mu: &sync.Mutex{}, writer: w}
}

// Enabled returns true if the handler is enabled for the given level.
func (h *HumanHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

// Handle outputs a log record in human-readable format.
func (h *HumanHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("15:04:05"))
	sb.WriteByte(' ')
	sb.WriteString(h.prefix(r.Level, r.Message))
	sb.WriteByte(' ')
	sb.WriteString(r.Message)

	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		parts = append(parts, h.formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, h.formatAttr(a))
		return true
	})

	if len(parts) > 0 {
		n := len(parts)
		if n > maxInlineAttrs {
			n = maxInlineAttrs
		}
		sb.WriteByte(' ')
		sb.WriteString(strings.Join(parts[:n], " "))
		if len(parts) > maxInlineAttrs {
			fmt.Fprintf(&sb, " (+%d more)", len(parts)-maxInlineAttrs)
		}
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, sb.String())
	return err
}

// WithAttrs returns a new handler with the given attributes added.
func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &HumanHandler{opts: h.opts, mu: h.mu, writer: h.writer, attrs: merged, groups: h.groups}
}

// WithGroup returns a new handler with the given group name.
func (h *HumanHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string(nil), h.groups...), name)
	return &HumanHandler{opts: h.opts, mu: h.mu, writer: h.writer, attrs: h.attrs, groups: groups}
}

// prefix returns the status symbol for a record, using ✓ for info-level
// messages that report a finished step.
func (h *HumanHandler) prefix(level slog.Level, message string) string {
	var symbol, color string
	switch {
	case level >= slog.LevelError:
		symbol, color = "✗", colorRed
	case level >= slog.LevelWarn:
		symbol, color = "⚠", colorYellow
	case level >= slog.LevelInfo && isSuccessMessage(message):
		symbol, color = "✓", colorGreen
	case level >= slog.LevelInfo:
		symbol, color = "ℹ", colorCyan
	default:
		symbol, color = "·", colorReset
	}
	if h.opts.UseColors {
		return color + symbol + colorReset
	}
	return symbol
}

func isSuccessMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, w := range successWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// formatAttr formats a single attribute for display.
func (h *HumanHandler) formatAttr(a slog.Attr) string {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	switch v := a.Value.Any().(type) {
	case time.Duration:
		return fmt.Sprintf("%s=%s", key, formatDuration(v))
	case float64:
		return fmt.Sprintf("%s=%.2f", key, v)
	default:
		return fmt.Sprintf("%s=%v", key, v)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

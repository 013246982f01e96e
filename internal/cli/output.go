// Package cli provides CLI output formatting and display functions.
package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gridiron-data/nflrefresh/internal/config"
	"github.com/gridiron-data/nflrefresh/internal/dataset"
	"github.com/gridiron-data/nflrefresh/pkg/nflstats"
)

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
}

// printer groups digits in record and byte counts.
var printer = message.NewPrinter(language.English)

// PrintReport displays the outcome of a refresh run.
// Failed seasons are always printed; successful ones are hidden in quiet mode.
func PrintReport(w io.Writer, report *nflstats.Report, opts OutputOptions) {
	if report == nil {
		fmt.Fprintln(w, "✗ No refresh report available")
		return
	}

	if !opts.Quiet || report.Failed() {
		printReportHeader(w, report)
	}
	if opts.Verbose {
		fmt.Fprintf(w, "  Run ID: %s\n", report.RunID)
		fmt.Fprintf(w, "  Duration: %s\n", report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}

	for _, res := range report.Results {
		if res.OK() && opts.Quiet {
			continue
		}
		printSeasonResult(w, res, opts.Verbose)
	}

	if report.DryRun && !opts.Quiet {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "ℹ No files were written (dry-run mode)")
	}
}

func printReportHeader(w io.Writer, report *nflstats.Report) {
	seasons := len(report.Results)
	records := printer.Sprintf("%d", report.TotalRecords())

	switch report.Status() {
	case "success":
		verb := "completed"
		if report.DryRun {
			verb = "checked"
		}
		fmt.Fprintf(w, "✓ Refresh %s: %s, %s, %s records\n", verb, report.Mode, plural(seasons, "season"), records)
	case "partial":
		fmt.Fprintf(w, "⚠ Refresh partially failed: %s, %d of %s succeeded, %s records\n",
			report.Mode, report.Succeeded(), plural(seasons, "season"), records)
	default:
		fmt.Fprintf(w, "✗ Refresh failed: %s, %s failed\n", report.Mode, plural(seasons, "season"))
	}
}

func printSeasonResult(w io.Writer, res nflstats.SeasonResult, verbose bool) {
	if f := res.Failure; f != nil {
		fmt.Fprintf(w, "  ✗ %d  %s\n", res.Season, f.Error())
		if detail := failureDetail(f); detail != "" {
			fmt.Fprintf(w, "      %s\n", detail)
		}
		return
	}

	name := filepath.Base(res.OutputPath)
	switch res.Status {
	case nflstats.StatusDryRun:
		fmt.Fprintf(w, "  ○ %d  would write %s (%s records)\n", res.Season, name, printer.Sprintf("%d", res.RecordCount))
	default:
		fmt.Fprintf(w, "  ✓ %d  %s (%s records, %s bytes)\n", res.Season, name,
			printer.Sprintf("%d", res.RecordCount), printer.Sprintf("%d", res.BytesWritten))
	}

	if verbose {
		fmt.Fprintf(w, "      Path: %s\n", res.OutputPath)
		fmt.Fprintf(w, "      Columns (%d): %s\n", len(res.Columns), strings.Join(res.Columns, ", "))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "      ⚠ %s\n", warning)
	}
}

func failureDetail(f *nflstats.Failure) string {
	var parts []string
	if f.Code != "" {
		parts = append(parts, f.Code)
	}
	if f.Category != "" {
		parts = append(parts, f.Category)
	}
	if f.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", f.StatusCode))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// PrintDataset displays the columns of ds and its first limit rows.
// A negative limit prints every row.
func PrintDataset(w io.Writer, path string, ds *dataset.Dataset, limit int) {
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  Rows: %s\n", printer.Sprintf("%d", ds.NumRows()))
	fmt.Fprintf(w, "  Columns: %d\n", ds.NumColumns())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range ds.Columns() {
		fmt.Fprintf(tw, "    %s\t%s\n", c.Name, c.Kind)
	}
	tw.Flush()

	if limit == 0 || ds.NumRows() == 0 {
		return
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  %s\n", strings.Join(ds.ColumnNames(), "\t"))
	shown := 0
	ds.Each(func(_ int, row []any) bool {
		if limit > 0 && shown >= limit {
			return false
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = formatCell(cell)
		}
		fmt.Fprintf(tw, "  %s\n", strings.Join(cells, "\t"))
		shown++
		return true
	})
	tw.Flush()

	if rest := ds.NumRows() - shown; rest > 0 {
		fmt.Fprintf(w, "  ... (%s more rows)\n", printer.Sprintf("%d", rest))
	}
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// PrintSettingsSummary prints the effective settings of a validated configuration.
func PrintSettingsSummary(w io.Writer, s *config.Settings) {
	if s == nil {
		return
	}

	fmt.Fprintf(w, "  Output directory: %s\n", s.OutputDir)
	fmt.Fprintf(w, "  Source: %s (timeout %s)\n", s.BaseURL, s.Timeout)

	modes := make([]string, 0, len(s.Datasets))
	for mode := range s.Datasets {
		modes = append(modes, mode.String())
	}
	sort.Strings(modes)
	for _, m := range modes {
		ds := s.Datasets[nflstats.Mode(m)]
		fmt.Fprintf(w, "  Dataset %s: %s/%s (required: %s)\n", m, ds.Release, ds.Asset, strings.Join(ds.RequiredColumns, ", "))
	}

	if s.S3 != nil {
		fmt.Fprintf(w, "  S3: s3://%s/%s\n", s.S3.Bucket, s.S3.Prefix)
	}
	if s.Kafka != nil {
		fmt.Fprintf(w, "  Kafka: %s (topic %s)\n", s.Kafka.Broker, s.Kafka.Topic)
	}
	for _, sched := range s.Schedules {
		fmt.Fprintf(w, "  Schedule %s: %q %s %v\n", sched.ID, sched.Cron, sched.Request.Mode, sched.Request.Seasons)
	}
}

package cli

import (
	"fmt"
	"io"

	"github.com/gridiron-data/nflrefresh/internal/config"
)

// PrintParseErrors prints configuration parse errors to w.
func PrintParseErrors(w io.Writer, errors []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errors {
		printSingleParseError(w, err, verbose)
	}
}

// printSingleParseError prints a single parse error with location information.
func printSingleParseError(w io.Writer, err config.ParseError, verbose bool) {
	location := formatErrorLocation(err.Path, err.Line, err.Column)
	message := err.Message
	if err.Section != "" {
		message = fmt.Sprintf("[%s] %s", err.Section, message)
	}

	if location != "" {
		fmt.Fprintf(w, "  %s: %s\n", location, message)
	} else {
		fmt.Fprintf(w, "  %s\n", message)
	}

	if verbose && err.Type != "" {
		fmt.Fprintf(w, "    Type: %s\n", err.Type)
	}
}

// formatErrorLocation formats the error location string (path:line:column).
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints configuration schema errors to w.
func PrintValidationErrors(w io.Writer, errors []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errors {
		printSingleValidationError(w, err, verbose)
	}
	printValidationHint(w, verbose, quiet)
}

func printSingleValidationError(w io.Writer, err config.ValidationError, verbose bool) {
	path := err.Path
	if path == "" {
		path = "/"
	}

	if verbose {
		printVerboseValidationError(w, path, err)
	} else {
		printCompactValidationError(w, path, err.Message)
	}
}

func printVerboseValidationError(w io.Writer, path string, err config.ValidationError) {
	fmt.Fprintf(w, "  %s:\n", path)
	fmt.Fprintf(w, "    Message: %s\n", err.Message)
	if section := err.Section(); section != "" {
		fmt.Fprintf(w, "    Section: %s\n", section)
	}
	if err.Type != "" {
		fmt.Fprintf(w, "    Type: %s\n", err.Type)
	}
	if err.Expected != "" {
		fmt.Fprintf(w, "    Expected: %s\n", err.Expected)
	}
}

// printCompactValidationError truncates long schema messages to one line.
func printCompactValidationError(w io.Writer, path, message string) {
	shortMsg := message
	if len(shortMsg) > 80 {
		shortMsg = shortMsg[:77] + "..."
	}
	fmt.Fprintf(w, "  %s: %s\n", path, shortMsg)
}

func printValidationHint(w io.Writer, verbose, quiet bool) {
	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

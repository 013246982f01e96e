// Package config parses, validates and converts nflrefresh configuration
// files (JSON or YAML) and applies environment overrides.
package config

import (
	"fmt"
	"strings"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Top-level sections of a configuration file.
const (
	SectionSchemaVersion = "schemaVersion"
	SectionRefresh       = "refresh"
	SectionDatasets      = "datasets"
	SectionPublish       = "publish"
	SectionSchedules     = "schedules"
	SectionLogging       = "logging"
)

// Sections lists the top-level keys a configuration may contain, in
// documentation order.
var Sections = []string{
	SectionSchemaVersion,
	SectionRefresh,
	SectionDatasets,
	SectionPublish,
	SectionSchedules,
	SectionLogging,
}

// Parse error types.
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseError is a configuration file that could not be decoded.
type ParseError struct {
	Path string
	// Section is the top-level section the error falls in, empty when the
	// error is outside any section or could not be located.
	Section string
	Line    int // 1-based, 0 if unknown
	Column  int // 1-based, 0 if unknown
	Message string
	Type    string
}

func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	if e.Section != "" {
		fmt.Fprintf(&sb, "[%s] ", e.Section)
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationResult is the outcome of checking decoded data against the schema.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError is a schema violation at a JSON pointer such as
// "/publish/s3/bucket".
type ValidationError struct {
	Path     string
	Type     string // required, type, pattern, enum, range, ...
	Expected string
	Actual   string
	Message  string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Section returns the top-level section of the error path, or "" for
// errors on the document root.
func (e ValidationError) Section() string {
	p := strings.TrimPrefix(e.Path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Result is a parsed and schema-checked configuration file.
type Result struct {
	FilePath         string
	Format           Format
	Data             map[string]interface{}
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
}

// IsValid reports whether the file decoded and passed the schema.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns parse errors followed by validation errors.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}

// HasSection reports whether the decoded configuration sets the named
// top-level section.
func (r *Result) HasSection(name string) bool {
	_, ok := r.Data[name]
	return ok
}

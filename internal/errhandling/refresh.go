package errhandling

import (
	"errors"
	"fmt"
)

// Error codes reported per season.
const (
	CodeFetchFailed      = "FETCH_FAILED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"
	CodePublishFailed    = "PUBLISH_FAILED"
	CodeUnknown          = "REFRESH_FAILED"
)

// FetchError reports that the loader could not produce a dataset for a season.
type FetchError struct {
	Season int
	Mode   string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("fetching %s season %d from %s: %v", e.Mode, e.Season, e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s season %d: %v", e.Mode, e.Season, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// WriteError reports that a fetched dataset could not be persisted.
type WriteError struct {
	Season int
	Path   string
	Err    error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("writing season %d to %s: %v", e.Season, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// MissingColumnsError reports a dataset lacking required columns.
type MissingColumnsError struct {
	Season  int
	Missing []string
}

// Error implements the error interface.
func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("season %d dataset is missing required columns %v", e.Season, e.Missing)
}

// CodeFor returns the report error code for err.
func CodeFor(err error) string {
	var fetchErr *FetchError
	var writeErr *WriteError
	var missingErr *MissingColumnsError
	switch {
	case errors.As(err, &fetchErr):
		return CodeFetchFailed
	case errors.As(err, &writeErr):
		return CodeWriteFailed
	case errors.As(err, &missingErr):
		return CodeValidationFailed
	default:
		return CodeUnknown
	}
}

// CategoryFor classifies err, treating missing columns as a validation error.
func CategoryFor(err error) ErrorCategory {
	var missingErr *MissingColumnsError
	if errors.As(err, &missingErr) {
		return CategoryValidation
	}
	return ClassifyError(err).Category
}

// Package nflstats provides public types for dataset refresh runs.
// This package is intended to be importable by external projects that need
// to request refreshes or consume their reports.
package nflstats

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FirstSeason is the earliest season published by the data provider.
const FirstSeason = 1999

// Mode selects which dataset a refresh downloads.
type Mode string

const (
	// ModeWeekly downloads weekly team data and accepts a week filter.
	ModeWeekly Mode = "weekly"

	// ModePlayerStats downloads player statistics for a whole season.
	ModePlayerStats Mode = "player_stats"
)

// ErrInvalidRequest is returned when a Request violates its invariants.
var ErrInvalidRequest = errors.New("invalid refresh request")

// ParseMode converts a user supplied mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "weekly_team_data", "weekly-team-data":
		return ModeWeekly, nil
	case "player_stats", "player-stats", "players":
		return ModePlayerStats, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected weekly or player_stats)", s)
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeWeekly || m == ModePlayerStats
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Request describes one refresh invocation.
type Request struct {
	// Seasons are processed sequentially in the given order (required, non-empty)
	Seasons []int `json:"seasons"`

	// Weeks optionally restricts weekly data to these week numbers
	Weeks []int `json:"weeks,omitempty"`

	// Mode selects the dataset to download
	Mode Mode `json:"mode"`
}

// Validate checks the request invariants.
// The returned error wraps ErrInvalidRequest.
func (r Request) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if len(r.Seasons) == 0 {
		return fmt.Errorf("%w: at least one season is required", ErrInvalidRequest)
	}
	for _, s := range r.Seasons {
		if s < FirstSeason {
			return fmt.Errorf("%w: season %d is before %d", ErrInvalidRequest, s, FirstSeason)
		}
	}
	if len(r.Weeks) > 0 && r.Mode != ModeWeekly {
		return fmt.Errorf("%w: weeks are only supported in %s mode", ErrInvalidRequest, ModeWeekly)
	}
	for _, w := range r.Weeks {
		if w <= 0 {
			return fmt.Errorf("%w: week %d must be a positive integer", ErrInvalidRequest, w)
		}
	}
	return nil
}

// Season result status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDryRun  = "dry_run"
)

// Failure kinds
const (
	FailureFetch    = "fetch"
	FailureValidate = "validate"
	FailureWrite    = "write"
)

// Failure describes why a season could not be refreshed.
type Failure struct {
	// Kind is the stage that failed (fetch, validate, write)
	Kind string `json:"kind"`

	// Code is the error code (e.g., FETCH_FAILED)
	Code string `json:"code"`

	// Category is the error classification (network, not_found, storage, ...)
	Category string `json:"category,omitempty"`

	// StatusCode is the upstream HTTP status (0 if not an HTTP error)
	StatusCode int `json:"statusCode,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed: %s", f.Kind, f.Message)
}

// SeasonResult is the outcome of refreshing a single season.
// Exactly one of the success fields or Failure is meaningful.
type SeasonResult struct {
	// Season is the refreshed season
	Season int `json:"season"`

	// Status is "success", "failed" or "dry_run"
	Status string `json:"status"`

	// OutputPath is the written file (the would-be file in dry-run mode)
	OutputPath string `json:"outputPath,omitempty"`

	// RecordCount is the number of rows written
	RecordCount int `json:"recordCount"`

	// Columns lists the dataset columns in provider order
	Columns []string `json:"columns,omitempty"`

	// BytesWritten is the size of the written file
	BytesWritten int64 `json:"bytesWritten,omitempty"`

	// Duration is the time spent on this season
	Duration time.Duration `json:"duration"`

	// Failure is set when Status is "failed"
	Failure *Failure `json:"failure,omitempty"`

	// Warnings collects non-fatal problems such as publisher errors
	Warnings []string `json:"warnings,omitempty"`
}

// OK reports whether the season was refreshed (or would have been in dry-run mode).
func (r SeasonResult) OK() bool {
	return r.Failure == nil
}

// Report is the result of a Refresh call.
type Report struct {
	// RunID uniquely identifies the run in logs and notifications
	RunID string `json:"runId"`

	// Mode is the refreshed dataset
	Mode Mode `json:"mode"`

	// DryRun is true when nothing was written
	DryRun bool `json:"dryRun,omitempty"`

	// StartedAt is when the run started
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when the run completed
	CompletedAt time.Time `json:"completedAt"`

	// Results holds one entry per requested season, in request order
	Results []SeasonResult `json:"results"`
}

// Failed reports whether any season failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return true
		}
	}
	return false
}

// Succeeded returns the number of seasons without a failure.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// TotalRecords sums the record counts of successful seasons.
func (r *Report) TotalRecords() int {
	total := 0
	for _, res := range r.Results {
		if res.OK() {
			total += res.RecordCount
		}
	}
	return total
}

// Status summarizes the run as "success", "error" or "partial".
func (r *Report) Status() string {
	ok := r.Succeeded()
	switch {
	case ok == len(r.Results):
		return "success"
	case ok == 0:
		return "error"
	default:
		return "partial"
	}
}

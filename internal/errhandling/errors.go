// Package errhandling provides error types and classification for dataset refreshes.
// Loader and writer failures are classified into categories so that reports,
// logs and exit codes can tell a missing release asset from a full disk.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorCategory represents the type/category of an error.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryNetwork represents timeouts, refused connections and DNS failures.
	CategoryNetwork ErrorCategory = "network"

	// CategoryAuthentication represents 401 and 403 responses from the provider.
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryValidation represents malformed requests, malformed payloads
	// and datasets missing required columns.
	CategoryValidation ErrorCategory = "validation"

	// CategoryRateLimit represents 429 responses.
	CategoryRateLimit ErrorCategory = "rate_limit"

	// CategoryServer represents 5xx responses.
	CategoryServer ErrorCategory = "server"

	// CategoryNotFound represents 404 responses, typically a season that has
	// not been published yet.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryStorage represents local filesystem failures (permission denied,
	// disk full, path is not a directory).
	CategoryStorage ErrorCategory = "storage"

	// CategoryUnknown represents unclassified errors.
	CategoryUnknown ErrorCategory = "unknown"
)

// ClassifiedError wraps an error with classification metadata.
// Retryable is informational: refreshes are never retried automatically,
// but reports surface it so an operator knows whether re-running may help.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is likely transient.
	Retryable bool

	// StatusCode is the HTTP status code (0 if not an HTTP error).
	StatusCode int

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Category, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

type statusClass struct {
	category  ErrorCategory
	retryable bool
	message   string
}

var knownStatuses = map[int]statusClass{
	400: {CategoryValidation, false, "bad request"},
	401: {CategoryAuthentication, false, "unauthorized"},
	403: {CategoryAuthentication, false, "forbidden"},
	404: {CategoryNotFound, false, "not found"},
	410: {CategoryNotFound, false, "gone"},
	422: {CategoryValidation, false, "unprocessable entity"},
	429: {CategoryRateLimit, true, "rate limited"},
	500: {CategoryServer, true, "internal server error"},
	502: {CategoryServer, true, "bad gateway"},
	503: {CategoryServer, true, "service unavailable"},
	504: {CategoryServer, true, "gateway timeout"},
}

// ClassifyHTTPStatus classifies a non-2xx provider response by status code.
//
// Classification rules:
//   - 401, 403: authentication
//   - 404, 410: not found
//   - 429: rate limit (retryable)
//   - 5xx: server (retryable)
//   - other 4xx: validation
//   - anything else: unknown, keeping the caller's message
func ClassifyHTTPStatus(statusCode int, message string) *ClassifiedError {
	if c, ok := knownStatuses[statusCode]; ok {
		return &ClassifiedError{Category: c.category, Retryable: c.retryable, StatusCode: statusCode, Message: c.message}
	}
	switch {
	case statusCode >= 500:
		return &ClassifiedError{Category: CategoryServer, Retryable: true, StatusCode: statusCode, Message: "server error"}
	case statusCode >= 400:
		return &ClassifiedError{Category: CategoryValidation, StatusCode: statusCode, Message: "client error"}
	default:
		return &ClassifiedError{Category: CategoryUnknown, Retryable: true, StatusCode: statusCode, Message: message}
	}
}

// ClassifyNetworkError classifies an error returned by an HTTP client call.
func ClassifyNetworkError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewNetworkError("request timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		// user initiated, re-running right away will not help
		return &ClassifiedError{Category: CategoryNetwork, Message: "context canceled", OriginalErr: err}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewNetworkError(fmt.Sprintf("DNS error: %s", dnsErr.Name), err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return NewNetworkError(fmt.Sprintf("network error: %s %s", opErr.Op, opErr.Net), err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return NewNetworkError("request timeout", err)
		}
		return NewNetworkError(fmt.Sprintf("URL error: %s %s", urlErr.Op, urlErr.URL), err)
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return NewNetworkError("timeout", err)
	}

	return &ClassifiedError{Category: CategoryUnknown, Retryable: true, Message: err.Error(), OriginalErr: err}
}

// ClassifyStorageError classifies a local filesystem error.
func ClassifyStorageError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	msg := err.Error()
	retryable := false
	switch {
	case errors.Is(err, fs.ErrPermission):
		msg = "permission denied"
	case errors.Is(err, syscall.ENOSPC):
		msg = "no space left on device"
		retryable = true
	case errors.Is(err, syscall.ENOTDIR):
		msg = "not a directory"
	case errors.Is(err, fs.ErrExist):
		msg = "file exists"
	}
	return &ClassifiedError{Category: CategoryStorage, Retryable: retryable, Message: msg, OriginalErr: err}
}

// ClassifyError classifies any error into a ClassifiedError.
// Already classified errors are returned as is; filesystem and network
// errors are recognised; everything else is CategoryUnknown.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{Category: CategoryUnknown, Message: "nil error"}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassifyNetworkError(err)
	}

	var pathErr *os.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.Is(err, syscall.ENOSPC) {
		return ClassifyStorageError(err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return ClassifyNetworkError(err)
	}

	return &ClassifiedError{Category: CategoryUnknown, Retryable: true, Message: err.Error(), OriginalErr: err}
}

// IsRetryable returns true if re-running the refresh may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsFatal returns true if re-running without a change will fail again.
// Fatal categories: Authentication, Validation, NotFound.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCategory(err) {
	case CategoryAuthentication, CategoryValidation, CategoryNotFound:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategoryUnknown
}

// NewNetworkError creates a retryable ClassifiedError for network errors.
func NewNetworkError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryNetwork, Retryable: true, Message: message, OriginalErr: originalErr}
}

// NewValidationError creates a ClassifiedError for malformed payloads or datasets.
func NewValidationError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryValidation, Message: message, OriginalErr: originalErr}
}

// NewNotFoundError creates a ClassifiedError for missing upstream assets.
func NewNotFoundError(message string, originalErr error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryNotFound, StatusCode: 404, Message: message, OriginalErr: originalErr}
}

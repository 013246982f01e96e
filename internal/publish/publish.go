// Package publish provides post-write publishers.
// A publisher announces or mirrors a Parquet file once it has been written;
// publishing is best effort and never undoes a completed write.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Artifact describes one written dataset file.
type Artifact struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Season      int       `json:"season"`
	Path        string    `json:"path"`
	RecordCount int       `json:"records"`
	Bytes       int64     `json:"bytes"`
	WrittenAt   time.Time `json:"written_at"`
}

// Publisher is notified after each successful write.
type Publisher interface {
	// Name identifies the publisher in logs and report warnings.
	Name() string
	// Publish mirrors or announces the artifact.
	Publish(ctx context.Context, a Artifact) error
	// Close releases any resources held by the publisher.
	Close() error
}

// Error reports a failed publish for one artifact.
type Error struct {
	Publisher string
	Path      string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s publish of %s failed: %v", e.Publisher, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CloseAll closes every publisher and joins their errors.
func CloseAll(pubs []Publisher) error {
	var errs []error
	for _, p := range pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

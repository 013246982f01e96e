// Package storage persists datasets as columnar files.
// Storage writers are responsible for leaving either a complete file or
// nothing at the destination path.
package storage

import (
	"context"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
)

// FileExtension is the extension of files produced by ParquetWriter.
const FileExtension = ".parquet"

// Writer persists a dataset at a path.
type Writer interface {
	// Write stores ds at path atomically and returns the bytes written.
	// On error no file exists at path that was not there before the call.
	Write(ctx context.Context, path string, ds *dataset.Dataset) (int64, error)
}

// Reader loads a dataset previously stored by a Writer.
type Reader interface {
	ReadFile(path string) (*dataset.Dataset, error)
}

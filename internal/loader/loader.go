// Package loader provides the data-loading capability used by refreshes.
// A Loader turns one season (optionally scoped to weeks) into a Dataset.
package loader

import (
	"context"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
)

// Loader fetches the dataset for one season.
type Loader interface {
	// Load downloads the season and returns it as a Dataset.
	// When weeks is non-empty only rows for those weeks are kept.
	// The context can be used to cancel the download.
	Load(ctx context.Context, season int, weeks []int) (*dataset.Dataset, error)
	// Close releases any resources held by the loader.
	Close() error
}

// Locator is implemented by loaders that can report where a season is fetched from.
type Locator interface {
	URL(season int) string
}

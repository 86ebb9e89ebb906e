// Package datastore reads and writes the per-dataset inputs of a catalog build:
// the exposure, its PSF and the detected sources.
package datastore

import (
	"context"
	"errors"

	"github.com/dbsmedya/shapecat/internal/types"
)

// ErrNotFound is returned when a dataset or one of its parts is absent.
var ErrNotFound = errors.New("not found")

// Store is the read side used by the catalog builder.
type Store interface {
	// Exists reports whether dataset id is present.
	Exists(ctx context.Context, id int) (bool, error)
	// PSF returns the PSF model of dataset id.
	PSF(ctx context.Context, id int) (*types.PSF, error)
	// Exposure returns the exposure of dataset id without a PSF attached.
	Exposure(ctx context.Context, id int) (*types.Exposure, error)
	// Sources returns the sources of dataset id in enumeration order.
	Sources(ctx context.Context, id int) ([]types.Source, error)
	// Datasets returns the ids present, ascending.
	Datasets(ctx context.Context) ([]int, error)
	// Summaries describes every dataset, ascending by id.
	Summaries(ctx context.Context) ([]Summary, error)
}

// Dataset is everything stored for one dataset id.
type Dataset struct {
	ID       int
	PSF      types.PSF
	Exposure *types.Exposure
	Sources  []types.Source
}

// Summary is the listing view of a dataset.
type Summary struct {
	ID          int
	PSFSigma    float64
	Width       int
	Height      int
	HasExposure bool
	Sources     int
}

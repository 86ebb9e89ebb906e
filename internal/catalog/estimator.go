package catalog

import (
	"context"
	"fmt"
	"io"

	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/logger"
)

// EstimateResult holds dry-run estimation results.
type EstimateResult struct {
	Requested       []int
	Present         []int
	Missing         []int
	Sources         int
	GridEvaluations int64 // objective evaluations a build would perform
	RowSize         int
	EstimatedBytes  int64 // uncompressed payload size
	Schema          Schema
}

// Estimator estimates the work and output size of a build without fitting.
type Estimator struct {
	store    datastore.Store
	schema   Schema
	gridSize int
	logger   *logger.Logger
}

// NewEstimator creates a new estimator. gridSize is the number of objective
// evaluations per source.
func NewEstimator(store datastore.Store, schema Schema, gridSize int, log *logger.Logger) *Estimator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Estimator{store: store, schema: schema, gridSize: gridSize, logger: log}
}

// Estimate counts the datasets and sources a build of ids would read.
func (e *Estimator) Estimate(ctx context.Context, ids []int) (*EstimateResult, error) {
	result := &EstimateResult{
		Requested: ids,
		RowSize:   e.schema.RowSize(),
		Schema:    e.schema,
	}

	for _, id := range ids {
		ok, err := e.store.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check dataset %d: %w", id, err)
		}
		if !ok {
			result.Missing = append(result.Missing, id)
			continue
		}
		sources, err := e.store.Sources(ctx, id)
		if err != nil {
			e.logger.Warnf("Failed to count sources of dataset %d: %v", id, err)
			continue
		}
		result.Present = append(result.Present, id)
		result.Sources += len(sources)
	}

	result.GridEvaluations = int64(result.Sources) * int64(e.gridSize)
	result.EstimatedBytes = int64(result.Sources) * int64(result.RowSize)
	return result, nil
}

// DisplayExecutionPlan writes the dry-run plan to w.
func (e *Estimator) DisplayExecutionPlan(w io.Writer, result *EstimateResult) {
	fmt.Fprintf(w, "\n=== Dry-Run Execution Plan ===\n\n")

	fmt.Fprintf(w, "Datasets requested: %d\n", len(result.Requested))
	fmt.Fprintf(w, "  Present: %v\n", result.Present)
	if len(result.Missing) > 0 {
		fmt.Fprintf(w, "  Missing (skipped): %v\n", result.Missing)
	}
	fmt.Fprintf(w, "\nSources to measure: %d\n", result.Sources)
	fmt.Fprintf(w, "  Grid evaluations: %d (%d per source)\n", result.GridEvaluations, e.gridSize)
	fmt.Fprintln(w)

	s := result.Schema
	fmt.Fprintf(w, "Table Layout:\n")
	fmt.Fprintf(w, "  Variant: %s\n", s.Variant)
	fmt.Fprintf(w, "  Coefficients: %d\n", s.NCoeff)
	if s.Extended() {
		fmt.Fprintf(w, "  Radius grid: %d\n", s.NRadius)
		fmt.Fprintf(w, "  Ellipticity grid: %v\n", s.Ellipticities)
	}
	fmt.Fprintf(w, "  Row size: %d bytes\n", result.RowSize)
	fmt.Fprintf(w, "  Estimated payload: %d bytes\n", result.EstimatedBytes)

	fmt.Fprintln(w, "\n=== End of Dry-Run ===")
	fmt.Fprintln(w, "\nNo table was written. Use 'build' command to execute.")
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/types"
)

// ErrNoDatasets is returned when a build processes no dataset at all.
var ErrNoDatasets = errors.New("no datasets processed")

// Measurer measures the sources of one exposure.
type Measurer interface {
	Measure(src types.Source) measure.Result
}

// MeasurerFactory configures a Measurer for an exposure with its PSF attached.
type MeasurerFactory func(exp *types.Exposure) (Measurer, error)

// FitterFactory returns a factory building a measure.Fitter per exposure.
func FitterFactory(cfg measure.Config) MeasurerFactory {
	return func(exp *types.Exposure) (Measurer, error) {
		f, err := measure.NewFitter(cfg, exp)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// BuildResult summarizes a build.
type BuildResult struct {
	Table     *Table
	Requested []int
	Processed []int
	Skipped   []int
	Sources   int
	Failed    int
	Duration  time.Duration
}

// Builder assembles a Table from a dataset store.
type Builder struct {
	store   datastore.Store
	schema  Schema
	factory MeasurerFactory
	logger  *logger.Logger
}

// NewBuilder creates a new builder.
func NewBuilder(store datastore.Store, schema Schema, factory MeasurerFactory, log *logger.Logger) (*Builder, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("measurer factory is nil")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Builder{store: store, schema: schema, factory: factory, logger: log}, nil
}

// Build measures every source of every existing dataset in ids, in order.
// Datasets absent from the store are skipped. Fit failures are recorded in
// the status column. ErrNoDatasets is returned when ids is empty or none exist.
func (b *Builder) Build(ctx context.Context, ids []int) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{
		Table:     NewTable(b.schema),
		Requested: slices.Clone(ids),
	}

	if len(ids) == 0 {
		return nil, ErrNoDatasets
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build interrupted before dataset %d: %w", id, err)
		}

		ok, err := b.store.Exists(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to check dataset %d: %w", id, err)
		}
		if !ok {
			b.logger.Debugf("Dataset %d not in store, skipping", id)
			result.Skipped = append(result.Skipped, id)
			continue
		}

		n, failed, err := b.buildDataset(ctx, id, result.Table)
		if err != nil {
			return nil, err
		}
		result.Processed = append(result.Processed, id)
		result.Sources += n
		result.Failed += failed
	}

	if len(result.Processed) == 0 {
		return nil, fmt.Errorf("%w: none of %v exist", ErrNoDatasets, ids)
	}

	result.Duration = time.Since(start)
	b.logger.Infof("Built table: %d rows from %d datasets (%d skipped, %d failed fits) in %v",
		result.Table.Len(), len(result.Processed), len(result.Skipped), result.Failed, result.Duration)
	return result, nil
}

// buildDataset appends the rows of one dataset to t.
func (b *Builder) buildDataset(ctx context.Context, id int, t *Table) (int, int, error) {
	log := b.logger.WithDataset(id)

	exp, err := b.store.Exposure(ctx, id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load exposure of dataset %d: %w", id, err)
	}
	psf, err := b.store.PSF(ctx, id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load psf of dataset %d: %w", id, err)
	}
	sources, err := b.store.Sources(ctx, id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load sources of dataset %d: %w", id, err)
	}

	exp.SetPSF(psf)
	m, err := b.factory(exp)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to configure measurement for dataset %d: %w", id, err)
	}

	log.Infof("Processing dataset %d: %d sources", id, len(sources))

	failed := 0
	for index, src := range sources {
		res := m.Measure(src)
		rec, err := b.record(id, index, src, res)
		if err != nil {
			return 0, 0, fmt.Errorf("dataset %d source %d: %w", id, src.ID, err)
		}
		if res.Status != 0 {
			failed++
		}
		log.WithSource(src.ID).Debugw("Measured source",
			"index", index,
			"status", res.Status,
			"flux", res.Flux,
			"e1", res.E1,
			"e2", res.E2,
			"r", res.R,
		)
		t.Rows = append(t.Rows, rec)
	}
	return len(sources), failed, nil
}

// record copies a measurement into a row laid out by the builder's schema.
func (b *Builder) record(dataset, index int, src types.Source, res measure.Result) (Record, error) {
	rec := Record{
		Dataset:    int32(dataset),
		ID:         src.ID,
		PsfFlux:    src.PsfFlux,
		PsfFluxErr: src.PsfFluxErr,
		X:          src.X,
		Y:          src.Y,
		Ixx:        src.Ixx,
		Iyy:        src.Iyy,
		Ixy:        src.Ixy,
		Status:     res.Status,
		Flux:       res.Flux,
		FluxErr:    res.FluxErr,
		E1:         res.E1,
		E2:         res.E2,
		R:          res.R,
		SrcFlags:   src.Flags,
		Coeff:      slices.Clone(res.Coefficients),
	}
	if b.schema.Extended() {
		rec.Index = int32(index)
		rec.RIndex = int32(res.RIndex)
		rec.E1Index = int32(res.E1Index)
		rec.E2Index = int32(res.E2Index)
		rec.Covariance = slices.Clone(res.Covariance)
		rec.GridRadius = slices.Clone(res.GridRadius)
		rec.Objective = slices.Clone(res.Objective)
	}
	if err := b.schema.checkRecord(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

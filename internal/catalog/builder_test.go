package catalog

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/synth"
	"github.com/dbsmedya/shapecat/internal/types"
)

func fitConfig() measure.Config {
	return measure.Config{
		Components:    []float64{0.5, 1, 2},
		RadiusFactors: []float64{0.5, 1, 2},
		Ellipticities: []float64{-0.3, 0, 0.3},
		NSigma:        4,
		MinHalfSize:   4,
		MaxHalfSize:   64,
		MinPixels:     16,
		MinRadius:     0.25,
		BadMask:       types.DefaultBadMask,
	}
}

func smallField() synth.Options {
	opts := synth.DefaultOptions()
	opts.Width, opts.Height = 64, 64
	opts.Galaxies, opts.Stars = 4, 2
	return opts
}

func synthStore(t *testing.T, ids ...int) *datastore.MemoryStore {
	t.Helper()
	store := datastore.NewMemoryStore()
	for _, id := range ids {
		d, err := synth.Generate(id, smallField())
		require.NoError(t, err)
		store.Put(d)
	}
	return store
}

// stubMeasurer returns a fixed-shape result derived from the source.
type stubMeasurer struct {
	schema Schema
	status func(types.Source) int64
}

func (s stubMeasurer) Measure(src types.Source) measure.Result {
	res := measure.Result{
		Flux:         src.PsfFlux,
		FluxErr:      1,
		E1:           0.1,
		E2:           -0.1,
		R:            2,
		RIndex:       1,
		E1Index:      0,
		E2Index:      2,
		Coefficients: make([]float64, s.schema.NCoeff),
		Covariance:   make([]float64, s.schema.NCoeff*s.schema.NCoeff),
		GridRadius:   make([]float64, s.schema.NRadius),
		Objective:    make([]float64, s.schema.ObjectiveLen()),
	}
	res.Coefficients[0] = src.PsfFlux
	if s.status != nil {
		res.Status = s.status(src)
	}
	return res
}

func stubFactory(s Schema) MeasurerFactory {
	return func(exp *types.Exposure) (Measurer, error) {
		if exp.PSF == nil {
			return nil, errors.New("psf not attached")
		}
		return stubMeasurer{schema: s}, nil
	}
}

func TestBuild_FitsSyntheticDatasets(t *testing.T) {
	cfg := fitConfig()
	schema := NewSchema(Extended, cfg)
	store := synthStore(t, 2, 5)

	b, err := NewBuilder(store, schema, FitterFactory(cfg), logger.NewNop())
	require.NoError(t, err)

	res, err := b.Build(context.Background(), []int{5, 3, 2})
	require.NoError(t, err)

	assert.Equal(t, []int{5, 3, 2}, res.Requested)
	assert.Equal(t, []int{5, 2}, res.Processed)
	assert.Equal(t, []int{3}, res.Skipped)
	assert.Equal(t, 12, res.Sources)
	assert.Equal(t, 12, res.Table.Len())
	require.NoError(t, res.Table.Validate())

	// Rows follow dataset iteration order, then source enumeration order.
	for i, rec := range res.Table.Rows {
		wantDataset := int32(5)
		if i >= 6 {
			wantDataset = 2
		}
		assert.Equal(t, wantDataset, rec.Dataset)
		assert.Equal(t, int32(i%6), rec.Index)
		assert.Equal(t, int64(i%6+1), rec.ID)
	}

	valid := 0
	for _, rec := range res.Table.Rows {
		if rec.Valid() {
			valid++
			assert.False(t, math.IsNaN(rec.Flux))
			assert.GreaterOrEqual(t, rec.RIndex, int32(0))
		} else {
			assert.True(t, math.IsNaN(rec.Flux))
		}
	}
	assert.Equal(t, res.Sources-res.Failed, valid)
	assert.Greater(t, valid, 0)
}

func TestBuild_RowsOnlyFromExistingRequestedDatasets(t *testing.T) {
	schema := NewSchema(Extended, fitConfig())
	store := synthStore(t, 1, 2, 3, 4)

	b, err := NewBuilder(store, schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)

	requested := []int{4, 9, 2}
	res, err := b.Build(context.Background(), requested)
	require.NoError(t, err)

	for _, rec := range res.Table.Rows {
		assert.Contains(t, []int32{4, 2}, rec.Dataset)
	}
	assert.Equal(t, []int32{4, 2}, res.Table.Datasets())
}

func TestBuild_NoDatasets(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	store := synthStore(t, 1)
	b, err := NewBuilder(store, schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)

	_, err = b.Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDatasets)

	_, err = b.Build(context.Background(), []int{})
	assert.ErrorIs(t, err, ErrNoDatasets)

	_, err = b.Build(context.Background(), []int{7, 8})
	assert.ErrorIs(t, err, ErrNoDatasets)
}

func TestBuild_EmptyDatasetAddsNoRows(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	empty := datastore.Dataset{ID: 3, PSF: types.PSF{Sigma: 1}, Exposure: types.NewExposure(0, 0, 8, 8)}
	store := datastore.NewMemoryStore(empty)

	b, err := NewBuilder(store, schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)

	res, err := b.Build(context.Background(), []int{3})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.Len())
	assert.Equal(t, []int{3}, res.Processed)
}

func TestBuild_FailuresRecordedNotRaised(t *testing.T) {
	schema := NewSchema(Extended, fitConfig())
	store := synthStore(t, 1)

	factory := func(exp *types.Exposure) (Measurer, error) {
		return stubMeasurer{schema: schema, status: func(src types.Source) int64 {
			if src.ID%2 == 0 {
				return measure.FlagFailFitSGUnknown
			}
			return 0
		}}, nil
	}

	b, err := NewBuilder(store, schema, factory, logger.NewNop())
	require.NoError(t, err)
	res, err := b.Build(context.Background(), []int{1})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Failed)
	for _, rec := range res.Table.Rows {
		if rec.ID%2 == 0 {
			assert.Equal(t, measure.FlagFailFitSGUnknown, rec.Status)
		} else {
			assert.Equal(t, int64(0), rec.Status)
		}
	}
}

func TestBuild_BasicVariantLeavesExtendedFieldsEmpty(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	store := synthStore(t, 1)

	b, err := NewBuilder(store, schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)
	res, err := b.Build(context.Background(), []int{1})
	require.NoError(t, err)

	for _, rec := range res.Table.Rows {
		assert.Len(t, rec.Coeff, 3)
		assert.Nil(t, rec.Covariance)
		assert.Nil(t, rec.Objective)
		assert.Equal(t, int32(0), rec.Index)
		assert.Equal(t, int32(0), rec.RIndex)
	}
}

func TestBuild_MeasurerSchemaMismatch(t *testing.T) {
	schema := NewSchema(Extended, fitConfig())
	other := schema
	other.NCoeff = 2

	b, err := NewBuilder(synthStore(t, 1), schema, stubFactory(other), logger.NewNop())
	require.NoError(t, err)

	_, err = b.Build(context.Background(), []int{1})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestBuild_ContextCanceled(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	b, err := NewBuilder(synthStore(t, 1), schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Build(ctx, []int{1})
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct {
	datastore.Store
	err error
}

func (f failingStore) Sources(context.Context, int) ([]types.Source, error) {
	return nil, f.err
}

func TestBuild_StoreErrorPropagates(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	boom := errors.New("disk on fire")
	store := failingStore{Store: synthStore(t, 1), err: boom}

	b, err := NewBuilder(store, schema, stubFactory(schema), logger.NewNop())
	require.NoError(t, err)
	_, err = b.Build(context.Background(), []int{1})
	assert.ErrorIs(t, err, boom)
}

func TestNewBuilder_Errors(t *testing.T) {
	schema := NewSchema(Basic, fitConfig())
	_, err := NewBuilder(nil, schema, stubFactory(schema), nil)
	assert.Error(t, err)

	_, err = NewBuilder(synthStore(t), schema, nil, nil)
	assert.Error(t, err)

	_, err = NewBuilder(synthStore(t), Schema{Variant: Basic}, stubFactory(schema), nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

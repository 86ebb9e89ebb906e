package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/tablefile"
)

// ============================================================================
// Test Helpers
// ============================================================================

type memStore map[string][]byte

func (m memStore) Put(_ context.Context, name string, data []byte) error {
	m[name] = data
	return nil
}

func (m memStore) Get(_ context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func createTestTable() *catalog.Table {
	s := catalog.Schema{Variant: catalog.Basic, NCoeff: 2}
	t := catalog.NewTable(s)
	for ds := int32(1); ds <= 3; ds++ {
		for id := int64(1); id <= int64(ds)+1; id++ {
			t.Rows = append(t.Rows, catalog.Record{
				Dataset: ds, ID: id, Flux: float64(id) * 10, PsfFlux: 9,
				Coeff: []float64{float64(id), float64(id) * 9},
			})
		}
	}
	return t
}

func saved(t *testing.T, table *catalog.Table) memStore {
	t.Helper()
	store := memStore{}
	_, err := tablefile.Save(context.Background(), store, "cat.sct", table, tablefile.CompressionZSTD)
	require.NoError(t, err)
	return store
}

// ============================================================================
// NewVerifier Tests
// ============================================================================

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(memStore{}, "cat.sct", MethodSHA256, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, MethodSHA256, v.GetMethod())

	v, err = NewVerifier(memStore{}, "cat.sct", "", nil)
	require.NoError(t, err)
	assert.Equal(t, MethodCount, v.GetMethod(), "count is the default method")
	assert.NotNil(t, v.logger)

	_, err = NewVerifier(nil, "cat.sct", MethodCount, nil)
	assert.Error(t, err)
	_, err = NewVerifier(memStore{}, "", MethodCount, nil)
	assert.Error(t, err)
}

// ============================================================================
// Verify Tests
// ============================================================================

func TestVerify_Success(t *testing.T) {
	table := createTestTable()
	store := saved(t, table)

	for _, method := range []VerificationMethod{MethodCount, MethodSHA256} {
		v, err := NewVerifier(store, "cat.sct", method, logger.NewNop())
		require.NoError(t, err)

		stats, err := v.Verify(context.Background(), table)
		require.NoError(t, err, method)
		assert.Equal(t, 3, stats.DatasetsVerified)
		assert.Equal(t, 3, stats.DatasetsPassed)
		assert.Equal(t, 0, stats.DatasetsFailed)
		assert.Equal(t, int64(9), stats.TotalRows)
		assert.NotEmpty(t, stats.BuildID)
	}
}

func TestVerify_SHA256_Mismatch(t *testing.T) {
	table := createTestTable()
	store := saved(t, table)

	changed := createTestTable()
	changed.Rows[3].Flux += 1e-9

	count, err := NewVerifier(store, "cat.sct", MethodCount, logger.NewNop())
	require.NoError(t, err)
	_, err = count.Verify(context.Background(), changed)
	assert.NoError(t, err, "counts still agree")

	sha, err := NewVerifier(store, "cat.sct", MethodSHA256, logger.NewNop())
	require.NoError(t, err)
	stats, err := sha.Verify(context.Background(), changed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset 2")
	assert.Contains(t, err.Error(), "hash mismatch")
	assert.Equal(t, 1, stats.DatasetsPassed)
	assert.Equal(t, 1, stats.DatasetsFailed)
}

func TestVerify_Count_Mismatch(t *testing.T) {
	table := createTestTable()
	store := saved(t, table)

	fewer := createTestTable()
	fewer.Rows = fewer.Rows[:len(fewer.Rows)-1]

	v, err := NewVerifier(store, "cat.sct", MethodCount, logger.NewNop())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), fewer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count mismatch: source=3, dest=4")
}

func TestVerify_ExtraDatasetInFile(t *testing.T) {
	table := createTestTable()
	store := saved(t, table)

	missing := createTestTable()
	missing.Rows = missing.Rows[:2] // dataset 1 only

	v, err := NewVerifier(store, "cat.sct", MethodSHA256, logger.NewNop())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset 2")
	assert.Contains(t, err.Error(), "count mismatch: source=0")
}

func TestVerify_SchemaMismatch(t *testing.T) {
	store := saved(t, createTestTable())

	other := createTestTable()
	other.Schema.NCoeff = 3
	v, err := NewVerifier(store, "cat.sct", MethodCount, logger.NewNop())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), other)
	assert.ErrorIs(t, err, catalog.ErrSchemaMismatch)
}

func TestVerify_MissingFile(t *testing.T) {
	v, err := NewVerifier(memStore{}, "cat.sct", MethodCount, logger.NewNop())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), createTestTable())
	assert.True(t, errors.Is(err, blob.ErrNotFound))
}

func TestVerify_Skip(t *testing.T) {
	v, err := NewVerifier(memStore{}, "cat.sct", MethodSkip, logger.NewNop())
	require.NoError(t, err)
	stats, err := v.Verify(context.Background(), createTestTable())
	require.NoError(t, err)
	assert.Equal(t, MethodSkip, stats.Method)
	assert.Zero(t, stats.DatasetsVerified)
}

func TestVerify_UnsupportedMethod(t *testing.T) {
	v, err := NewVerifier(memStore{}, "cat.sct", "crc", logger.NewNop())
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), createTestTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported verification method")
}

func TestVerify_ContextCancellation(t *testing.T) {
	table := createTestTable()
	v, err := NewVerifier(saved(t, table), "cat.sct", MethodCount, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Verify(ctx, table)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetLogger(t *testing.T) {
	v, err := NewVerifier(memStore{}, "cat.sct", MethodCount, nil)
	require.NoError(t, err)
	log := logger.NewNop()
	v.SetLogger(log)
	assert.Same(t, log, v.logger)
}

package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/types"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(sampleDataset(3), sampleDataset(1))

	ids, err := store.Datasets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids)

	ok, _ := store.Exists(ctx, 3)
	assert.True(t, ok)
	ok, _ = store.Exists(ctx, 2)
	assert.False(t, ok)

	exp, err := store.Exposure(ctx, 3)
	require.NoError(t, err)
	exp.SetPSF(&types.PSF{Sigma: 9})

	again, err := store.Exposure(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, again.PSF, "attaching a PSF does not leak into the store")

	sources, err := store.Sources(ctx, 3)
	require.NoError(t, err)
	sources[0].ID = -1
	fresh, _ := store.Sources(ctx, 3)
	assert.Equal(t, int64(9), fresh[0].ID)

	_, err = store.PSF(ctx, 2)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = store.Exposure(ctx, 2)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_Summaries(t *testing.T) {
	noExposure := sampleDataset(5)
	noExposure.Exposure = nil
	store := NewMemoryStore(sampleDataset(2), noExposure)

	sums, err := store.Summaries(context.Background())
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.True(t, sums[0].HasExposure)
	assert.Equal(t, 4, sums[0].Width)
	assert.False(t, sums[1].HasExposure)
	assert.Equal(t, 2, sums[1].Sources)
}

func TestPixelCodec(t *testing.T) {
	values := []float64{0, -1.5, 3e300, 1e-300}
	got, err := decodeFloats(encodeFloats(values), len(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)

	_, err = decodeFloats(make([]byte, 7), 1)
	assert.Error(t, err)

	mask := []uint16{0, types.MaskBad, 0xffff}
	gotMask, err := decodeMask(encodeMask(mask), len(mask))
	require.NoError(t, err)
	assert.Equal(t, mask, gotMask)
}

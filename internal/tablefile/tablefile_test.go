package tablefile

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/measure"
)

func extendedSchema() catalog.Schema {
	return catalog.Schema{Variant: catalog.Extended, NCoeff: 2, NRadius: 3, Ellipticities: []float64{-0.5, 0, 0.5}}
}

func basicSchema() catalog.Schema {
	return catalog.Schema{Variant: catalog.Basic, NCoeff: 3}
}

func record(s catalog.Schema, dataset int32, id int64) catalog.Record {
	r := catalog.Record{
		Dataset:    dataset,
		ID:         id,
		PsfFlux:    float64(id) * 1.5,
		PsfFluxErr: 0.25,
		X:          10.5,
		Y:          -3.25,
		Ixx:        2,
		Iyy:        1,
		Ixy:        0.1,
		Flux:       float64(id) * 2,
		FluxErr:    0.5,
		E1:         0.1,
		E2:         -0.2,
		R:          1.75,
		SrcFlags:   int64(id) << 3,
		Coeff:      make([]float64, s.NCoeff),
	}
	for k := range r.Coeff {
		r.Coeff[k] = r.Flux / float64(s.NCoeff)
	}
	if s.Extended() {
		r.Index = int32(id - 1)
		r.RIndex, r.E1Index, r.E2Index = 1, 2, 0
		r.Covariance = make([]float64, s.NCoeff*s.NCoeff)
		r.GridRadius = []float64{0.5, 1, 2}
		r.Objective = make([]float64, s.ObjectiveLen())
		for i := range r.Objective {
			r.Objective[i] = float64(i)
		}
		r.Objective[0] = math.Inf(1)
	}
	return r
}

func failedRecord(s catalog.Schema, dataset int32, id int64) catalog.Record {
	r := record(s, dataset, id)
	r.Status = measure.FlagFailFitSGUnknown
	r.Flux, r.FluxErr, r.E1, r.E2, r.R = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
	for k := range r.Coeff {
		r.Coeff[k] = math.NaN()
	}
	return r
}

func table(s catalog.Schema, n int) *catalog.Table {
	t := catalog.NewTable(s)
	for i := 0; i < n; i++ {
		if i%4 == 3 {
			t.Rows = append(t.Rows, failedRecord(s, int32(i/5+1), int64(i+1)))
			continue
		}
		t.Rows = append(t.Rows, record(s, int32(i/5+1), int64(i+1)))
	}
	return t
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []catalog.Schema{basicSchema(), extendedSchema()} {
		for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
			t.Run(s.Variant.String()+"/"+c.String(), func(t *testing.T) {
				in := table(s, 40)
				data, enc, err := Encode(in, c, uuid.Nil)
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, enc.Header.BuildID)

				out, err := Decode(data, &s)
				require.NoError(t, err)
				if diff := cmp.Diff(in, out.Table, cmpopts.EquateNaNs()); diff != "" {
					t.Errorf("round trip mismatch (-in +out):\n%s", diff)
				}
				assert.Equal(t, enc.Digest, out.Digest)
				assert.Equal(t, enc.Header, out.Header)
			})
		}
	}
}

func TestRoundTrip_Empty(t *testing.T) {
	s := extendedSchema()
	data, _, err := Encode(catalog.NewTable(s), CompressionZSTD, uuid.Nil)
	require.NoError(t, err)

	out, err := Decode(data, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Table.Len())
	assert.True(t, s.Equal(out.Table.Schema))
}

func TestRoundTrip_BitExact(t *testing.T) {
	s := basicSchema()
	rng := rand.New(rand.NewPCG(7, 11))
	in := catalog.NewTable(s)
	for i := 0; i < 64; i++ {
		r := record(s, 1, int64(i))
		r.Flux = math.Float64frombits(rng.Uint64())
		r.X = math.Float64frombits(rng.Uint64())
		r.Coeff[1] = math.Float64frombits(rng.Uint64())
		in.Rows = append(in.Rows, r)
	}

	data, _, err := Encode(in, CompressionLZ4, uuid.Nil)
	require.NoError(t, err)
	out, err := Decode(data, nil)
	require.NoError(t, err)

	for i := range in.Rows {
		assert.Equal(t, math.Float64bits(in.Rows[i].Flux), math.Float64bits(out.Table.Rows[i].Flux))
		assert.Equal(t, math.Float64bits(in.Rows[i].X), math.Float64bits(out.Table.Rows[i].X))
		assert.Equal(t, math.Float64bits(in.Rows[i].Coeff[1]), math.Float64bits(out.Table.Rows[i].Coeff[1]))
	}
}

func TestEncode_Compression(t *testing.T) {
	in := table(extendedSchema(), 200)

	raw, _, err := Encode(in, CompressionNone, uuid.Nil)
	require.NoError(t, err)
	packed, f, err := Encode(in, CompressionZSTD, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, CompressionZSTD, f.Header.Compression)
	assert.Less(t, len(packed), len(raw))
	assert.Equal(t, f.Header.PayloadSize, uint64(len(raw)-HeaderSize))
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	s := catalog.Schema{Variant: catalog.Basic, NCoeff: 8}
	rng := rand.New(rand.NewPCG(1, 2))
	in := catalog.NewTable(s)
	for i := 0; i < 32; i++ {
		r := catalog.Record{
			Dataset: rng.Int32(), ID: rng.Int64(), Status: rng.Int64(), SrcFlags: rng.Int64(),
			Coeff: make([]float64, s.NCoeff),
		}
		for _, p := range []*float64{&r.PsfFlux, &r.PsfFluxErr, &r.X, &r.Y, &r.Ixx, &r.Iyy, &r.Ixy, &r.Flux, &r.FluxErr, &r.E1, &r.E2, &r.R} {
			*p = math.Float64frombits(rng.Uint64())
		}
		for k := range r.Coeff {
			r.Coeff[k] = math.Float64frombits(rng.Uint64())
		}
		in.Rows = append(in.Rows, r)
	}

	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		data, f, err := Encode(in, c, uuid.Nil)
		require.NoError(t, err)
		assert.Equal(t, CompressionNone, f.Header.Compression, c.String())
		assert.Equal(t, f.Header.PayloadSize, f.Header.StoredSize)

		out, err := Decode(data, &s)
		require.NoError(t, err)
		assert.Equal(t, in.Len(), out.Table.Len())
	}
}

func TestEncode_InvalidTable(t *testing.T) {
	s := extendedSchema()
	in := table(s, 3)
	in.Rows[1].Objective = nil
	_, _, err := Encode(in, CompressionNone, uuid.Nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecode_SchemaMismatch(t *testing.T) {
	s := extendedSchema()
	data, _, err := Encode(table(s, 5), CompressionNone, uuid.Nil)
	require.NoError(t, err)

	other := extendedSchema()
	other.Ellipticities[1] = 0.1
	_, err = Decode(data, &other)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	basic := basicSchema()
	_, err = Decode(data, &basic)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	bumped := bytes.Clone(data)
	binary.LittleEndian.PutUint16(bumped[4:], Version+1)
	_, err = Decode(bumped, nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	// A header whose grid sizes no longer match the stored column fingerprint.
	resized := bytes.Clone(data)
	binary.LittleEndian.PutUint16(resized[8:], 4)
	_, err = Decode(resized, nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	unknown := bytes.Clone(data)
	unknown[6] = 9
	_, err = Decode(unknown, nil)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestDecode_Corrupt(t *testing.T) {
	data, _, err := Encode(table(extendedSchema(), 5), CompressionNone, uuid.Nil)
	require.NoError(t, err)

	cases := map[string]func([]byte) []byte{
		"short":     func(b []byte) []byte { return b[:HeaderSize-1] },
		"magic":     func(b []byte) []byte { b[0] = 'X'; return b },
		"truncated": func(b []byte) []byte { return b[:len(b)-8] },
		"payload":   func(b []byte) []byte { b[len(b)-3] ^= 0xff; return b },
		"rows": func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[16:], 6)
			return b
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(mutate(bytes.Clone(data)), nil)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestDecode_RowCountOverflow(t *testing.T) {
	empty := &catalog.Table{Schema: catalog.Schema{Variant: catalog.Basic, NCoeff: 2}}
	data, _, err := Encode(empty, CompressionNone, uuid.Nil)
	require.NoError(t, err)

	// 2^63 rows of 140 bytes wraps to the payload size of an empty table.
	for _, rows := range []uint64{1 << 63, math.MaxUint64, math.MaxInt64 / 140} {
		bad := bytes.Clone(data)
		binary.LittleEndian.PutUint64(bad[16:], rows)
		var decodeErr error
		require.NotPanics(t, func() { _, decodeErr = Decode(bad, nil) })
		assert.ErrorIs(t, decodeErr, ErrCorrupt, "rows=%d", rows)
	}
}

func TestDecode_CorruptCompressed(t *testing.T) {
	for _, c := range []Compression{CompressionLZ4, CompressionZSTD} {
		data, f, err := Encode(table(extendedSchema(), 100), c, uuid.Nil)
		require.NoError(t, err)
		require.Equal(t, c, f.Header.Compression)

		bad := bytes.Clone(data)
		for i := HeaderSize + 8; i < len(bad); i += 16 {
			bad[i] ^= 0x5a
		}
		_, err = Decode(bad, nil)
		assert.ErrorIs(t, err, ErrCorrupt, c.String())
	}
}

func TestDigest(t *testing.T) {
	a := table(extendedSchema(), 10)
	b := table(extendedSchema(), 10)

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
	assert.Len(t, da, 64)

	b.Rows[4].Flux = math.Nextafter(b.Rows[4].Flux, math.Inf(1))
	db, err = Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)

	_, f, err := Encode(a, CompressionZSTD, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, da, f.Digest, "digest does not depend on compression")
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "lz4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("gzip")
	assert.Error(t, err)
}

func TestSaveLoad_Filters(t *testing.T) {
	s := catalog.Schema{Variant: catalog.Basic, NCoeff: 1}
	in := &catalog.Table{Schema: s, Rows: []catalog.Record{
		{Dataset: 1, ID: 1, Status: 0, Flux: 10, Coeff: []float64{10}},
		{Dataset: 1, ID: 2, Status: 1, Flux: 5, Coeff: []float64{5}},
		{Dataset: 1, ID: 3, Status: 0, Flux: -2, Coeff: []float64{-2}},
	}}

	store := blob.NewLocalStore(t.TempDir())
	ctx := context.Background()
	saved, err := Save(ctx, store, "cat.sct", in, CompressionZSTD)
	require.NoError(t, err)

	got, err := Load(ctx, store, "cat.sct", &s, catalog.FilterOptions{Status: true, Flux: true})
	require.NoError(t, err)
	require.Equal(t, 1, got.Table.Len())
	assert.Equal(t, int64(1), got.Table.Rows[0].ID)
	assert.Equal(t, 10.0, got.Table.Rows[0].Flux)
	assert.Equal(t, saved.Digest, got.Digest)

	all, err := Load(ctx, store, "cat.sct", nil, catalog.NoFilters())
	require.NoError(t, err)
	assert.Equal(t, 3, all.Table.Len())
}

func TestSave_Mirrors(t *testing.T) {
	local := blob.NewLocalStore(t.TempDir())
	mirror := blob.NewLocalStore(t.TempDir())
	ctx := context.Background()

	saved, err := Save(ctx, local, "cat.sct", table(basicSchema(), 4), CompressionLZ4, mirror)
	require.NoError(t, err)

	a, err := local.Get(ctx, "cat.sct")
	require.NoError(t, err)
	b, err := mirror.Get(ctx, "cat.sct")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	h, err := ReadHeader(b)
	require.NoError(t, err)
	assert.Equal(t, saved.Header.BuildID, h.BuildID)
}

func TestLoad_Errors(t *testing.T) {
	store := blob.NewLocalStore(t.TempDir())
	ctx := context.Background()

	_, err := Load(ctx, store, "missing.sct", nil, catalog.NoFilters())
	assert.ErrorIs(t, err, blob.ErrNotFound)

	s := extendedSchema()
	_, err = Save(ctx, store, "cat.sct", table(s, 2), CompressionNone)
	require.NoError(t, err)

	basic := basicSchema()
	_, err = Load(ctx, store, "cat.sct", &basic, catalog.DefaultFilterOptions())
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

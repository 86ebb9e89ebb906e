package plot

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/catalog"
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

func sampleTable() *catalog.Table {
	s := catalog.Schema{Variant: catalog.Basic, NCoeff: 2}
	return &catalog.Table{Schema: s, Rows: []catalog.Record{
		{Dataset: 1, ID: 1, Flux: 100, PsfFlux: 90, Coeff: []float64{25, 75}},
		{Dataset: 1, ID: 2, Flux: 10, PsfFlux: 10, Coeff: []float64{5, 5}},
		{Dataset: 2, ID: 9007199254740993, Status: measure.FlagFailInitTooSmall, Flux: math.NaN(), PsfFlux: 4, Coeff: []float64{math.NaN(), math.NaN()}},
	}}
}

func TestMagDiff(t *testing.T) {
	fig, err := MagDiff(sampleTable(), MagDiffOptions{ColorComponent: -1, Config: plainConfig(30, 8)})
	require.NoError(t, err)
	assert.Equal(t, 2, fig.Plotted)
	assert.Equal(t, 1, fig.Skipped, "failed fit has NaN magnitude")
	assert.Contains(t, fig.Text, "psf_mag - mag")

	fig, err = MagDiff(sampleTable(), MagDiffOptions{ColorComponent: 1, Config: &Config{Width: 30, Height: 8, Color: true}})
	require.NoError(t, err)
	assert.Contains(t, Strip(fig.Text), "coeff[1]/flux 0.5")
}

func TestMagDiff_ComponentOutOfRange(t *testing.T) {
	_, err := MagDiff(sampleTable(), MagDiffOptions{ColorComponent: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table has 2 coefficients")
}

func TestRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Rows(&buf, sampleTable(), []string{"id", "flux", "coeff[1]"}, 2))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id  flux  coeff[1]", lines[0])
	assert.Equal(t, " 1   100        75", lines[1])
	assert.Equal(t, "... 1 more rows", lines[3])

	buf.Reset()
	require.NoError(t, Rows(&buf, sampleTable(), []string{"id"}, 0))
	assert.Contains(t, buf.String(), "9007199254740993", "ids are printed exactly")

	assert.Error(t, Rows(&buf, sampleTable(), []string{"nope"}, 0))
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, sampleTable())
	out := buf.String()
	assert.Contains(t, out, "variant       basic")
	assert.Contains(t, out, "rows          3")
	assert.Contains(t, out, "datasets      [1 2]")
	assert.Contains(t, out, "FAIL_INIT_TOO_SMALL=1")
	assert.Contains(t, out, "OK=2")
	assert.Contains(t, out, "-5.000 .. -2.500")
}

func builtTable(t *testing.T) (*catalog.Table, datastore.Dataset) {
	t.Helper()
	opts := synth.DefaultOptions()
	opts.Width, opts.Height = 64, 64
	opts.Galaxies, opts.Stars = 4, 2
	d, err := synth.Generate(1, opts)
	require.NoError(t, err)

	cfg := fitConfig()
	b, err := catalog.NewBuilder(datastore.NewMemoryStore(d), catalog.NewSchema(catalog.Extended, cfg), catalog.FitterFactory(cfg), logger.NewNop())
	require.NoError(t, err)
	res, err := b.Build(context.Background(), []int{1})
	require.NoError(t, err)
	return res.Table, d
}

func newViewer(t *testing.T, d datastore.Dataset, cfg *Config) *Viewer {
	t.Helper()
	exp := *d.Exposure
	psf := d.PSF
	exp.SetPSF(&psf)
	f, err := measure.NewFitter(fitConfig(), &exp)
	require.NoError(t, err)
	v, err := NewViewer(f, cfg)
	require.NoError(t, err)
	return v
}

func TestViewer_Render(t *testing.T) {
	table, d := builtTable(t)
	v := newViewer(t, d, plainConfig(60, 12))

	rendered := 0
	for i, rec := range table.Rows {
		var buf bytes.Buffer
		err := v.Render(&buf, rec, d.Sources[i])
		require.NoError(t, err)
		out := buf.String()
		assert.Contains(t, out, "status")
		if !rec.Valid() {
			assert.Contains(t, out, "no model")
			continue
		}
		rendered++
		assert.Contains(t, out, "model drawn with the configured components [")
		assert.Contains(t, out, "data")
		assert.Contains(t, out, "model")
		assert.Contains(t, out, "residual")
		assert.Contains(t, out, "radial profile")
		assert.Contains(t, out, "o data")
	}
	assert.Greater(t, rendered, 0)
}

func TestViewer_Errors(t *testing.T) {
	_, err := NewViewer(nil, nil)
	assert.Error(t, err)

	table, d := builtTable(t)
	v := newViewer(t, d, nil)
	var buf bytes.Buffer
	err = v.Render(&buf, table.Rows[0], d.Sources[1])
	assert.Error(t, err, "record and source disagree")
}

func TestDownsample(t *testing.T) {
	st := &measure.Stamp{Width: 3, Height: 3,
		Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, math.NaN()},
		Used: []bool{false, false, false, false, false, false, false, false, true},
	}
	p := downsample(st, st.Data, 2)
	assert.Equal(t, 2, p.width)
	assert.Equal(t, []float64{3, 4.5, 7.5}, p.values[:3])
	assert.True(t, math.IsNaN(p.values[3]))
	assert.Equal(t, []bool{false, false, false, true}, downsampleUsed(st, 2))
}

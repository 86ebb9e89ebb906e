package measure

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/shapecat/internal/types"
)

func testConfig() Config {
	return Config{
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

// renderGalaxy draws a noise-free mixture at (cx, cy) and returns the matching source.
func renderGalaxy(exp *types.Exposure, cx, cy, r, e1, e2 float64, components, coeff []float64) types.Source {
	sigma := exp.PSF.Sigma
	for j := 0; j < exp.Height; j++ {
		for i := 0; i < exp.Width; i++ {
			x, y := float64(exp.X0+i), float64(exp.Y0+j)
			exp.Image[j*exp.Width+i] += Profile(x-cx, y-cy, r, e1, e2, sigma, components, coeff)
		}
	}
	q := shape(r, e1, e2)
	return types.Source{
		ID:  1,
		X:   cx,
		Y:   cy,
		Ixx: q.xx + sigma*sigma,
		Iyy: q.yy + sigma*sigma,
		Ixy: q.xy,
	}
}

func newExposure(size int) *types.Exposure {
	exp := types.NewExposure(0, 0, size, size)
	for i := range exp.Variance {
		exp.Variance[i] = 1
	}
	exp.SetPSF(&types.PSF{Sigma: 1})
	return exp
}

func TestMeasure_NoiseFreeRecovery(t *testing.T) {
	cfg := testConfig()
	exp := newExposure(41)
	coeff := []float64{200, 500, 300}
	src := renderGalaxy(exp, 20, 20, 2, 0.3, 0, cfg.Components, coeff)

	f, err := NewFitter(cfg, exp)
	require.NoError(t, err)

	res := f.Measure(src)
	require.Equal(t, int64(0), res.Status, StatusString(res.Status))

	assert.InDelta(t, 1000, res.Flux, 1e-3)
	assert.Greater(t, res.FluxErr, 0.0)
	assert.Equal(t, 0.3, res.E1)
	assert.Equal(t, 0.0, res.E2)
	assert.InDelta(t, 2, res.R, 1e-12)
	assert.Equal(t, 1, res.RIndex)
	assert.Equal(t, 2, res.E1Index)
	assert.Equal(t, 1, res.E2Index)
	for k := range coeff {
		assert.InDelta(t, coeff[k], res.Coefficients[k], 1e-3)
	}

	assert.Len(t, res.Covariance, 9)
	assert.Len(t, res.GridRadius, 3)
	assert.InDeltaSlice(t, []float64{1, 2, 4}, res.GridRadius, 1e-9)
	require.Len(t, res.Objective, cfg.GridSize())

	best := res.Objective[(res.RIndex*3+res.E1Index)*3+res.E2Index]
	assert.InDelta(t, 0, best, 1e-6)
	for i, v := range res.Objective {
		assert.GreaterOrEqual(t, v, best, "objective[%d]", i)
	}

	// The covariance is symmetric.
	assert.InDelta(t, res.Covariance[1], res.Covariance[3], 1e-9)
}

func TestMeasure_InvalidEllipticityPoints(t *testing.T) {
	cfg := testConfig()
	cfg.Ellipticities = []float64{-0.9, 0, 0.9}
	exp := newExposure(41)
	src := renderGalaxy(exp, 20, 20, 2, 0, 0, cfg.Components, []float64{0, 800, 0})

	f, err := NewFitter(cfg, exp)
	require.NoError(t, err)
	res := f.Measure(src)
	require.Equal(t, int64(0), res.Status)

	// e1 = e2 = 0.9 lies outside the unit disc.
	assert.True(t, math.IsInf(res.Objective[(0*3+2)*3+2], 1))
	assert.InDelta(t, 800, res.Flux, 1e-3)
}

func TestMeasure_Failures(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name   string
		mutate func(*types.Exposure, *types.Source)
		cfg    func(*Config)
		status int64
	}{
		{
			name:   "NaN moments",
			mutate: func(_ *types.Exposure, s *types.Source) { s.Ixy = math.NaN() },
			status: FlagFailInitSGNaN,
		},
		{
			name:   "NaN centroid",
			mutate: func(_ *types.Exposure, s *types.Source) { s.X = math.NaN() },
			status: FlagFailInitSGNaN,
		},
		{
			name:   "non-positive moments",
			mutate: func(_ *types.Exposure, s *types.Source) { s.Ixx = -1 },
			status: FlagFailInitSGMoments,
		},
		{
			name:   "singular moments",
			mutate: func(_ *types.Exposure, s *types.Source) { s.Ixx, s.Iyy, s.Ixy = 4, 4, 4 },
			status: FlagFailInitSGMoments,
		},
		{
			name:   "footprint too large",
			mutate: func(_ *types.Exposure, s *types.Source) { s.Ixx, s.Iyy = 1e4, 1e4 },
			status: FlagFailInitTooLarge,
		},
		{
			name: "everything masked",
			mutate: func(e *types.Exposure, _ *types.Source) {
				for i := range e.Mask {
					e.Mask[i] = types.MaskSat
				}
			},
			status: FlagFailInitTooSmall,
		},
		{
			name: "zero variance",
			mutate: func(e *types.Exposure, _ *types.Source) {
				for i := range e.Variance {
					e.Variance[i] = 0
				}
			},
			status: FlagFailInitTooSmall,
		},
		{
			name:   "best radius on the grid edge",
			cfg:    func(c *Config) { c.RadiusFactors = []float64{0.2, 0.4} },
			status: FlagFailFitSGRadius,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			if tt.cfg != nil {
				tt.cfg(&c)
			}
			exp := newExposure(41)
			src := renderGalaxy(exp, 20, 20, 2, 0.3, 0, c.Components, []float64{200, 500, 300})
			if tt.mutate != nil {
				tt.mutate(exp, &src)
			}

			f, err := NewFitter(c, exp)
			require.NoError(t, err)
			res := f.Measure(src)

			assert.Equal(t, tt.status, res.Status, StatusString(res.Status))
			assert.True(t, res.Failed())
			assert.True(t, math.IsNaN(res.Flux))
			assert.True(t, math.IsNaN(res.E1))
			assert.Len(t, res.Coefficients, c.NCoeff())
			assert.Len(t, res.Objective, c.GridSize())
		})
	}
}

func TestMeasure_MaskedPixelsIgnored(t *testing.T) {
	cfg := testConfig()
	exp := newExposure(41)
	src := renderGalaxy(exp, 20, 20, 2, 0, 0.3, cfg.Components, []float64{100, 600, 300})

	// Corrupt a few pixels and flag them bad.
	for _, i := range []int{20*41 + 21, 19*41 + 20, 22*41 + 22} {
		exp.Image[i] = 1e6
		exp.Mask[i] = types.MaskCR
	}

	f, err := NewFitter(cfg, exp)
	require.NoError(t, err)
	res := f.Measure(src)
	require.Equal(t, int64(0), res.Status)
	assert.InDelta(t, 1000, res.Flux, 1e-3)
	assert.Equal(t, 0.3, res.E2)
}

func TestNewFitter_Errors(t *testing.T) {
	exp := types.NewExposure(0, 0, 10, 10)
	_, err := NewFitter(testConfig(), exp)
	assert.Error(t, err, "exposure without PSF")

	_, err = NewFitter(testConfig(), nil)
	assert.Error(t, err)

	bad := testConfig()
	bad.Components = nil
	exp.SetPSF(&types.PSF{Sigma: 1})
	_, err = NewFitter(bad, exp)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	mutations := []func(*Config){
		func(c *Config) { c.Components = []float64{1, -1} },
		func(c *Config) { c.RadiusFactors = nil },
		func(c *Config) { c.RadiusFactors = []float64{0} },
		func(c *Config) { c.Ellipticities = []float64{1} },
		func(c *Config) { c.NSigma = 0 },
		func(c *Config) { c.MaxHalfSize = 1 },
		func(c *Config) { c.MinRadius = 0 },
	}
	for i, m := range mutations {
		c := testConfig()
		m(&c)
		assert.Error(t, c.Validate(), "mutation %d", i)
	}
}

func TestStamp(t *testing.T) {
	cfg := testConfig()
	exp := newExposure(41)
	src := renderGalaxy(exp, 20, 20, 2, 0.3, 0, cfg.Components, []float64{200, 500, 300})
	exp.Mask[20*41+20] = types.MaskBad

	f, err := NewFitter(cfg, exp)
	require.NoError(t, err)
	res := f.Measure(src)
	require.Equal(t, int64(0), res.Status)

	st, err := f.Stamp(src, res)
	require.NoError(t, err)
	assert.Equal(t, st.Width, st.Height)
	assert.Equal(t, 20-(st.Width-1)/2, st.X0)

	center := st.At((st.Width-1)/2, (st.Height-1)/2)
	assert.False(t, st.Used[center], "masked pixel is excluded")
	for i := range st.Residual {
		if st.Used[i] {
			assert.InDelta(t, 0, st.Residual[i], 1e-6)
		}
	}

	failed := res
	failed.Status = FlagFailFitSGUnknown
	_, err = f.Stamp(src, failed)
	assert.Error(t, err)
}

func TestStamp_ClippedAtEdge(t *testing.T) {
	cfg := testConfig()
	exp := newExposure(30)
	src := renderGalaxy(exp, 3, 3, 1.5, 0, 0, cfg.Components, []float64{0, 400, 0})

	f, err := NewFitter(cfg, exp)
	require.NoError(t, err)
	res := f.Measure(src)
	require.Equal(t, int64(0), res.Status)
	assert.InDelta(t, 400, res.Flux, 1e-3)

	st, err := f.Stamp(src, res)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(st.Data[0]), "pixels off the exposure are NaN")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "OK", StatusString(0))
	assert.Equal(t, "FAIL_INIT_TOO_SMALL", StatusString(FlagFailInitTooSmall))
	assert.Equal(t, "FAIL_INIT_SG_NAN|FAIL_FIT_SG_RADIUS", StatusString(FlagFailInitSGNaN|FlagFailFitSGRadius))
	assert.Equal(t, "FAIL_INIT_TOO_LARGE|UNKNOWN", StatusString(FlagFailInitTooLarge|1))
}

// Package measure fits a PSF-convolved Gaussian-mixture galaxy model to each
// source of an exposure over a grid of radius and ellipticity values.
package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/dbsmedya/shapecat/internal/types"
)

// maxCond rejects normal matrices too ill-conditioned to invert.
const maxCond = 1e12

// Result is the measurement of one source.
// Objective is indexed [radius][e1][e2], flattened row-major.
type Result struct {
	Status       int64
	Flux         float64
	FluxErr      float64
	E1           float64
	E2           float64
	R            float64
	RIndex       int
	E1Index      int
	E2Index      int
	Coefficients []float64
	Covariance   []float64
	GridRadius   []float64
	Objective    []float64
}

// Failed reports whether the fit set any status flag.
func (r Result) Failed() bool {
	return r.Status != 0
}

type pixel struct {
	dx, dy float64
	value  float64
	weight float64
}

// Fitter measures sources on one exposure.
type Fitter struct {
	cfg    Config
	exp    *types.Exposure
	psfVar float64
}

// NewFitter prepares a fitter for exp, which must have a PSF attached.
func NewFitter(cfg Config, exp *types.Exposure) (*Fitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid measurement config: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("exposure is nil")
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if err := exp.PSF.Validate(); err != nil {
		return nil, fmt.Errorf("exposure psf: %w", err)
	}
	return &Fitter{cfg: cfg, exp: exp, psfVar: exp.PSF.Sigma * exp.PSF.Sigma}, nil
}

// Config returns the fitter configuration.
func (f *Fitter) Config() Config {
	return f.cfg
}

// Exposure returns the exposure being measured.
func (f *Fitter) Exposure() *types.Exposure {
	return f.exp
}

func (f *Fitter) newResult() Result {
	k := f.cfg.NCoeff()
	return Result{
		Flux:         math.NaN(),
		FluxErr:      math.NaN(),
		E1:           math.NaN(),
		E2:           math.NaN(),
		R:            math.NaN(),
		RIndex:       -1,
		E1Index:      -1,
		E2Index:      -1,
		Coefficients: nanSlice(k),
		Covariance:   nanSlice(k * k),
		GridRadius:   nanSlice(f.cfg.NRadius()),
		Objective:    nanSlice(f.cfg.GridSize()),
	}
}

// Measure fits src. Failures are reported in Result.Status, never as errors.
func (f *Fitter) Measure(src types.Source) Result {
	res := f.newResult()

	r0, status := f.initialRadius(src)
	if status != 0 {
		res.Status = status
		return res
	}

	pix, status := f.pixels(src)
	if status != 0 {
		res.Status = status
		return res
	}

	nr, ne := f.cfg.NRadius(), f.cfg.NEll()
	best := math.Inf(1)
	for ir, factor := range f.cfg.RadiusFactors {
		r := factor * r0
		res.GridRadius[ir] = r
		for i1, e1 := range f.cfg.Ellipticities {
			for i2, e2 := range f.cfg.Ellipticities {
				chi2 := math.Inf(1)
				if e1*e1+e2*e2 < 1 {
					if sol, ok := f.solve(pix, r, e1, e2, false); ok {
						chi2 = sol.chi2
					}
				}
				res.Objective[(ir*ne+i1)*ne+i2] = chi2
				if chi2 < best {
					best = chi2
					res.RIndex, res.E1Index, res.E2Index = ir, i1, i2
				}
			}
		}
	}

	if math.IsInf(best, 1) {
		res.Status |= FlagFailFitSGUnknown
		return res
	}
	if nr > 1 && res.RIndex == nr-1 {
		res.Status |= FlagFailFitSGRadius
		return res
	}

	r := res.GridRadius[res.RIndex]
	e1 := f.cfg.Ellipticities[res.E1Index]
	e2 := f.cfg.Ellipticities[res.E2Index]
	sol, ok := f.solve(pix, r, e1, e2, true)
	if !ok {
		res.Status |= FlagFailFitSGUnknown
		return res
	}

	k := f.cfg.NCoeff()
	var flux, variance float64
	for i := 0; i < k; i++ {
		res.Coefficients[i] = sol.coeff.AtVec(i)
		flux += res.Coefficients[i]
		for j := 0; j < k; j++ {
			c := sol.cov.At(i, j)
			res.Covariance[i*k+j] = c
			variance += c
		}
	}
	res.Flux = flux
	res.FluxErr = math.Sqrt(variance)
	res.R, res.E1, res.E2 = r, e1, e2
	return res
}

// initialRadius returns the PSF-deconvolved moment radius det(M - psf)^(1/4),
// floored at MinRadius.
func (f *Fitter) initialRadius(src types.Source) (float64, int64) {
	if math.IsNaN(src.X) || math.IsNaN(src.Y) ||
		math.IsNaN(src.Ixx) || math.IsNaN(src.Iyy) || math.IsNaN(src.Ixy) {
		return 0, FlagFailInitSGNaN
	}
	m := moments{xx: src.Ixx, yy: src.Iyy, xy: src.Ixy}
	if m.xx <= 0 || m.yy <= 0 || m.det() <= 0 {
		return 0, FlagFailInitSGMoments
	}

	r0 := f.cfg.MinRadius
	d := moments{xx: m.xx - f.psfVar, yy: m.yy - f.psfVar, xy: m.xy}
	if d.xx > 0 && d.yy > 0 && d.det() > 0 {
		r0 = math.Max(math.Pow(d.det(), 0.25), f.cfg.MinRadius)
	}
	return r0, 0
}

// footprint returns the square fitting region around src.
func (f *Fitter) footprint(src types.Source) (cx, cy, half int, status int64) {
	half = int(math.Ceil(f.cfg.NSigma * math.Sqrt(math.Max(src.Ixx, src.Iyy))))
	if half < f.cfg.MinHalfSize {
		half = f.cfg.MinHalfSize
	}
	if half > f.cfg.MaxHalfSize {
		return 0, 0, half, FlagFailInitTooLarge
	}
	return int(math.Round(src.X)), int(math.Round(src.Y)), half, 0
}

// usable reports whether plane offset i may enter the fit.
func (f *Fitter) usable(i int) bool {
	return f.exp.Mask[i]&f.cfg.BadMask == 0 &&
		f.exp.Variance[i] > 0 &&
		!math.IsNaN(f.exp.Image[i]) && !math.IsInf(f.exp.Image[i], 0)
}

func (f *Fitter) pixels(src types.Source) ([]pixel, int64) {
	cx, cy, half, status := f.footprint(src)
	if status != 0 {
		return nil, status
	}

	pix := make([]pixel, 0, (2*half+1)*(2*half+1))
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			i, ok := f.exp.Index(x, y)
			if !ok || !f.usable(i) {
				continue
			}
			pix = append(pix, pixel{
				dx:     float64(x) - src.X,
				dy:     float64(y) - src.Y,
				value:  f.exp.Image[i],
				weight: 1 / f.exp.Variance[i],
			})
		}
	}

	if len(pix) < f.cfg.MinPixels || len(pix) < f.cfg.NCoeff() {
		return nil, FlagFailInitTooSmall
	}
	return pix, 0
}

type solution struct {
	chi2  float64
	coeff *mat.VecDense
	cov   *mat.SymDense
}

// solve finds the weighted least-squares component fluxes at one grid point.
func (f *Fitter) solve(pix []pixel, r, e1, e2 float64, withCov bool) (solution, bool) {
	k := f.cfg.NCoeff()
	q := shape(r, e1, e2)
	comps := make([]moments, k)
	for j, s := range f.cfg.Components {
		comps[j] = component(q, s, f.psfVar)
	}

	a := mat.NewDense(len(pix), k, nil)
	d := mat.NewVecDense(len(pix), nil)
	for p, px := range pix {
		sw := math.Sqrt(px.weight)
		for j, m := range comps {
			a.Set(p, j, sw*gaussian(px.dx, px.dy, m))
		}
		d.SetVec(p, sw*px.value)
	}

	var normal mat.SymDense
	normal.SymOuterK(1, a.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(&normal); !ok || chol.Cond() > maxCond {
		return solution{}, false
	}

	var rhs mat.VecDense
	rhs.MulVec(a.T(), d)

	coeff := mat.NewVecDense(k, nil)
	if err := chol.SolveVecTo(coeff, &rhs); err != nil {
		return solution{}, false
	}

	var resid mat.VecDense
	resid.MulVec(a, coeff)
	resid.SubVec(d, &resid)

	sol := solution{chi2: mat.Dot(&resid, &resid), coeff: coeff}
	if withCov {
		sol.cov = mat.NewSymDense(k, nil)
		if err := chol.InverseTo(sol.cov); err != nil {
			return solution{}, false
		}
	}
	return sol, true
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Package synth generates deterministic synthetic datasets: noisy exposures
// of Gaussian-mixture galaxies and PSF stars with their detection records.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/types"
)

// Options controls the content of a generated dataset.
type Options struct {
	Width          int
	Height         int
	PSFSigma       float64
	Noise          float64 // per-pixel standard deviation
	Galaxies       int
	Stars          int
	FluxMin        float64
	FluxMax        float64
	RadiusMin      float64
	RadiusMax      float64
	MaxEllipticity float64
	Components     []float64
	EdgeMargin     int     // sources closer than this to the border get FlagEdge
	BadPixels      float64 // fraction of pixels flagged MaskBad
	Seed           uint64
}

// DefaultOptions returns a small, uncrowded field.
func DefaultOptions() Options {
	return Options{
		Width:          128,
		Height:         128,
		PSFSigma:       1.5,
		Noise:          1,
		Galaxies:       12,
		Stars:          4,
		FluxMin:        500,
		FluxMax:        5000,
		RadiusMin:      1,
		RadiusMax:      3,
		MaxEllipticity: 0.5,
		Components:     []float64{0.5, 1, 2},
		EdgeMargin:     4,
		BadPixels:      0.001,
		Seed:           1,
	}
}

// Validate checks the options describe a drawable field.
func (o Options) Validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("field size must be positive, got %dx%d", o.Width, o.Height)
	}
	if !(o.PSFSigma > 0) {
		return fmt.Errorf("psf sigma must be positive")
	}
	if o.Noise < 0 {
		return fmt.Errorf("noise must not be negative")
	}
	if o.Galaxies < 0 || o.Stars < 0 {
		return fmt.Errorf("source counts must not be negative")
	}
	if !(o.FluxMin > 0) || o.FluxMax < o.FluxMin {
		return fmt.Errorf("flux range [%v, %v] is invalid", o.FluxMin, o.FluxMax)
	}
	if !(o.RadiusMin > 0) || o.RadiusMax < o.RadiusMin {
		return fmt.Errorf("radius range [%v, %v] is invalid", o.RadiusMin, o.RadiusMax)
	}
	if o.MaxEllipticity < 0 || o.MaxEllipticity >= 1 {
		return fmt.Errorf("max ellipticity must be in [0, 1)")
	}
	if o.Galaxies > 0 && len(o.Components) == 0 {
		return fmt.Errorf("galaxies need at least one component")
	}
	return nil
}

type object struct {
	x, y      float64
	r, e1, e2 float64
	coeff     []float64
	star      bool
}

// Generate draws dataset id. The same options and id always give the same dataset.
func Generate(id int, opts Options) (datastore.Dataset, error) {
	if err := opts.Validate(); err != nil {
		return datastore.Dataset{}, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, uint64(id)))

	exp := types.NewExposure(0, 0, opts.Width, opts.Height)
	psf := types.PSF{Sigma: opts.PSFSigma}

	objects := make([]object, 0, opts.Galaxies+opts.Stars)
	for i := 0; i < opts.Galaxies+opts.Stars; i++ {
		obj := object{
			x: rng.Float64() * float64(opts.Width-1),
			y: rng.Float64() * float64(opts.Height-1),
		}
		flux := opts.FluxMin * math.Pow(opts.FluxMax/opts.FluxMin, rng.Float64())
		if i >= opts.Galaxies {
			obj.star = true
			obj.coeff = []float64{flux}
		} else {
			obj.r = opts.RadiusMin + (opts.RadiusMax-opts.RadiusMin)*rng.Float64()
			e := opts.MaxEllipticity * math.Sqrt(rng.Float64())
			theta := 2 * math.Pi * rng.Float64()
			obj.e1, obj.e2 = e*math.Cos(theta), e*math.Sin(theta)
			obj.coeff = splitFlux(rng, flux, len(opts.Components))
		}
		objects = append(objects, obj)
	}

	variance := opts.Noise * opts.Noise
	if variance == 0 {
		variance = 1
	}
	for j := 0; j < opts.Height; j++ {
		for i := 0; i < opts.Width; i++ {
			k := j*opts.Width + i
			var v float64
			for _, obj := range objects {
				v += obj.value(float64(i), float64(j), opts)
			}
			exp.Image[k] = v + opts.Noise*rng.NormFloat64()
			exp.Variance[k] = variance
			if rng.Float64() < opts.BadPixels {
				exp.Mask[k] |= types.MaskBad
			}
		}
	}

	sources := make([]types.Source, len(objects))
	for i, obj := range objects {
		sources[i] = obj.source(int64(i+1), exp, opts)
	}

	return datastore.Dataset{ID: id, PSF: psf, Exposure: exp, Sources: sources}, nil
}

// splitFlux divides flux among n components with random positive weights.
func splitFlux(rng *rand.Rand, flux float64, n int) []float64 {
	w := make([]float64, n)
	var total float64
	for k := range w {
		w[k] = 0.2 + rng.Float64()
		total += w[k]
	}
	for k := range w {
		w[k] *= flux / total
	}
	return w
}

func (o object) value(x, y float64, opts Options) float64 {
	if o.star {
		return measure.Profile(x-o.x, y-o.y, 0, 0, 0, opts.PSFSigma, []float64{1}, o.coeff)
	}
	return measure.Profile(x-o.x, y-o.y, o.r, o.e1, o.e2, opts.PSFSigma, opts.Components, o.coeff)
}

// moments returns the exact PSF-convolved second moments of the object.
func (o object) moments(opts Options) (ixx, iyy, ixy float64) {
	psfVar := opts.PSFSigma * opts.PSFSigma
	if o.star {
		return psfVar, psfVar, 0
	}
	var total, scale float64
	for k, s := range opts.Components {
		total += o.coeff[k]
		scale += o.coeff[k] * s * s
	}
	scale /= total
	f := o.r * o.r / math.Sqrt(1-o.e1*o.e1-o.e2*o.e2)
	return scale*f*(1+o.e1) + psfVar, scale*f*(1-o.e1) + psfVar, scale * f * o.e2
}

func (o object) source(id int64, exp *types.Exposure, opts Options) types.Source {
	src := types.Source{ID: id, X: o.x, Y: o.y}
	src.Ixx, src.Iyy, src.Ixy = o.moments(opts)
	src.PsfFlux, src.PsfFluxErr = psfFlux(exp, o.x, o.y, opts.PSFSigma)

	if o.star {
		src.Flags |= types.FlagStar
	}
	m := float64(opts.EdgeMargin)
	if o.x < m || o.y < m || o.x > float64(opts.Width-1)-m || o.y > float64(opts.Height-1)-m {
		src.Flags |= types.FlagEdge
	}
	if i, ok := exp.Index(int(math.Round(o.x)), int(math.Round(o.y))); ok && exp.Mask[i]&types.MaskBad != 0 {
		src.Flags |= types.FlagInterpCenter | types.FlagInterp
	}
	return src
}

// psfFlux is the inverse-variance weighted PSF matched-filter flux at (x, y).
func psfFlux(exp *types.Exposure, x, y, sigma float64) (float64, float64) {
	half := int(math.Ceil(4 * sigma))
	cx, cy := int(math.Round(x)), int(math.Round(y))

	var num, den float64
	for j := cy - half; j <= cy+half; j++ {
		for i := cx - half; i <= cx+half; i++ {
			k, ok := exp.Index(i, j)
			if !ok || exp.Mask[k] != 0 || exp.Variance[k] <= 0 {
				continue
			}
			p := measure.Profile(float64(i)-x, float64(j)-y, 0, 0, 0, sigma, []float64{1}, []float64{1})
			w := 1 / exp.Variance[k]
			num += w * p * exp.Image[k]
			den += w * p * p
		}
	}
	if den == 0 {
		return math.NaN(), math.NaN()
	}
	return num / den, 1 / math.Sqrt(den)
}

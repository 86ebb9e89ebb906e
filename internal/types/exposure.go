// Package types contains the image and detection primitives shared by the
// dataset store, the fitter and the catalog builder.
package types

import (
	"fmt"
	"math"
)

// Mask planes carried by an Exposure.
const (
	MaskBad   uint16 = 1 << iota // bad detector pixel
	MaskSat                      // saturated
	MaskIntrp                    // interpolated over
	MaskCR                       // cosmic ray
	MaskEdge                     // too close to the detector edge
)

// DefaultBadMask is the set of mask planes excluded from fitting.
const DefaultBadMask = MaskBad | MaskSat | MaskIntrp | MaskCR | MaskEdge

// PSF is a circular Gaussian point-spread function.
type PSF struct {
	Sigma float64 // pixels
}

// Validate checks that the PSF width is usable.
func (p *PSF) Validate() error {
	if p == nil {
		return fmt.Errorf("psf is nil")
	}
	if math.IsNaN(p.Sigma) || math.IsInf(p.Sigma, 0) || p.Sigma <= 0 {
		return fmt.Errorf("psf sigma must be positive, got %v", p.Sigma)
	}
	return nil
}

// Exposure is a calibrated image with its variance and mask planes.
// Pixel (i, j) of the planes sits at parent coordinates (X0+i, Y0+j).
type Exposure struct {
	X0, Y0   int
	Width    int
	Height   int
	Image    []float64
	Variance []float64
	Mask     []uint16
	PSF      *PSF
}

// NewExposure allocates zeroed planes for a width x height exposure.
func NewExposure(x0, y0, width, height int) *Exposure {
	n := width * height
	return &Exposure{
		X0:       x0,
		Y0:       y0,
		Width:    width,
		Height:   height,
		Image:    make([]float64, n),
		Variance: make([]float64, n),
		Mask:     make([]uint16, n),
	}
}

// SetPSF attaches a PSF to the exposure.
func (e *Exposure) SetPSF(psf *PSF) {
	e.PSF = psf
}

// Index returns the plane offset of parent pixel (x, y).
func (e *Exposure) Index(x, y int) (int, bool) {
	i, j := x-e.X0, y-e.Y0
	if i < 0 || j < 0 || i >= e.Width || j >= e.Height {
		return 0, false
	}
	return j*e.Width + i, true
}

// Validate checks plane sizes against the declared dimensions.
func (e *Exposure) Validate() error {
	if e.Width <= 0 || e.Height <= 0 {
		return fmt.Errorf("exposure dimensions must be positive, got %dx%d", e.Width, e.Height)
	}
	n := e.Width * e.Height
	if len(e.Image) != n {
		return fmt.Errorf("image plane has %d pixels, expected %d", len(e.Image), n)
	}
	if len(e.Variance) != n {
		return fmt.Errorf("variance plane has %d pixels, expected %d", len(e.Variance), n)
	}
	if len(e.Mask) != n {
		return fmt.Errorf("mask plane has %d pixels, expected %d", len(e.Mask), n)
	}
	return nil
}

package measure

import (
	"fmt"
	"math"

	"github.com/dbsmedya/shapecat/internal/config"
)

// Config controls the model grid and the pixel footprint.
type Config struct {
	Components    []float64 // radius scale of each mixture component
	RadiusFactors []float64 // grid radii as multiples of the moment radius
	Ellipticities []float64 // shared e1 and e2 grid
	NSigma        float64
	MinHalfSize   int
	MaxHalfSize   int
	MinPixels     int
	MinRadius     float64
	BadMask       uint16
}

// FromConfig converts the measurement section of the application config.
func FromConfig(m config.MeasurementConfig) Config {
	return Config{
		Components:    append([]float64(nil), m.Components...),
		RadiusFactors: append([]float64(nil), m.RadiusFactors...),
		Ellipticities: append([]float64(nil), m.Ellipticities...),
		NSigma:        m.NSigma,
		MinHalfSize:   m.MinHalfSize,
		MaxHalfSize:   m.MaxHalfSize,
		MinPixels:     m.MinPixels,
		MinRadius:     m.MinRadius,
		BadMask:       uint16(m.BadMask),
	}
}

// NCoeff is the number of mixture coefficients per source.
func (c Config) NCoeff() int { return len(c.Components) }

// NRadius is the number of radius grid points.
func (c Config) NRadius() int { return len(c.RadiusFactors) }

// NEll is the number of ellipticity grid points per axis.
func (c Config) NEll() int { return len(c.Ellipticities) }

// GridSize is the number of objective evaluations per source.
func (c Config) GridSize() int { return c.NRadius() * c.NEll() * c.NEll() }

// Validate checks the grid is usable.
func (c Config) Validate() error {
	if c.NCoeff() == 0 {
		return fmt.Errorf("at least one component is required")
	}
	for i, s := range c.Components {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("component %d scale must be positive, got %v", i, s)
		}
	}
	if c.NRadius() == 0 {
		return fmt.Errorf("at least one radius factor is required")
	}
	for i, f := range c.RadiusFactors {
		if !(f > 0) || math.IsInf(f, 0) {
			return fmt.Errorf("radius factor %d must be positive, got %v", i, f)
		}
	}
	if c.NEll() == 0 {
		return fmt.Errorf("at least one ellipticity is required")
	}
	for i, e := range c.Ellipticities {
		if !(math.Abs(e) < 1) {
			return fmt.Errorf("ellipticity %d must be in (-1, 1), got %v", i, e)
		}
	}
	if !(c.NSigma > 0) {
		return fmt.Errorf("n_sigma must be positive")
	}
	if c.MinHalfSize < 1 || c.MaxHalfSize < c.MinHalfSize {
		return fmt.Errorf("half size bounds [%d, %d] are invalid", c.MinHalfSize, c.MaxHalfSize)
	}
	if !(c.MinRadius > 0) {
		return fmt.Errorf("min_radius must be positive")
	}
	return nil
}

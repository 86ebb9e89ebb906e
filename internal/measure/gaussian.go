package measure

import "math"

// moments is a symmetric 2x2 second-moment matrix.
type moments struct {
	xx, yy, xy float64
}

func (m moments) det() float64 {
	return m.xx*m.yy - m.xy*m.xy
}

// shape returns the moments of radius r and distortion (e1, e2).
// The determinant is r^4 for any |e| < 1.
func shape(r, e1, e2 float64) moments {
	f := r * r / math.Sqrt(1-e1*e1-e2*e2)
	return moments{xx: f * (1 + e1), yy: f * (1 - e1), xy: f * e2}
}

// component returns the PSF-convolved moments of a mixture component of scale s.
func component(q moments, s, psfVar float64) moments {
	s2 := s * s
	return moments{xx: s2*q.xx + psfVar, yy: s2*q.yy + psfVar, xy: s2 * q.xy}
}

// gaussian evaluates a unit-flux elliptical Gaussian at offset (dx, dy).
func gaussian(dx, dy float64, m moments) float64 {
	d := m.det()
	if d <= 0 {
		return 0
	}
	chi := (m.yy*dx*dx - 2*m.xy*dx*dy + m.xx*dy*dy) / d
	return math.Exp(-0.5*chi) / (2 * math.Pi * math.Sqrt(d))
}

// Profile evaluates a mixture with per-component fluxes coeff at offset (dx, dy).
func Profile(dx, dy, r, e1, e2, psfSigma float64, components, coeff []float64) float64 {
	q := shape(r, e1, e2)
	psfVar := psfSigma * psfSigma
	var v float64
	for k, s := range components {
		v += coeff[k] * gaussian(dx, dy, component(q, s, psfVar))
	}
	return v
}

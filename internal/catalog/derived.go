package catalog

import "math"

// Magnitude converts a flux to -2.5 log10(flux). Non-positive flux gives +Inf (zero) or NaN.
func Magnitude(flux float64) float64 {
	return -2.5 * math.Log10(flux)
}

// MRadius returns sqrt(ixx + iyy) for every row.
func MRadius(t *Table) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = math.Sqrt(t.Rows[i].Ixx + t.Rows[i].Iyy)
	}
	return out
}

// Ellipticity returns sqrt(e1^2 + e2^2) for every row.
func Ellipticity(t *Table) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		e1, e2 := t.Rows[i].E1, t.Rows[i].E2
		out[i] = math.Sqrt(e1*e1 + e2*e2)
	}
	return out
}

// Mag returns the model magnitude of every row.
func Mag(t *Table) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = Magnitude(t.Rows[i].Flux)
	}
	return out
}

// PsfMag returns the PSF magnitude of every row.
func PsfMag(t *Table) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = Magnitude(t.Rows[i].PsfFlux)
	}
	return out
}

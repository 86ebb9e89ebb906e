package plot

import (
	"fmt"

	"github.com/dbsmedya/shapecat/internal/catalog"
)

// MagDiffOptions configures the magnitude difference plot.
type MagDiffOptions struct {
	// ColorComponent colors points by that component's flux fraction; -1 disables it.
	ColorComponent int
	Config         *Config
}

// MagDiff plots psf_mag - mag against mag.
func MagDiff(t *catalog.Table, opts MagDiffOptions) (*Figure, error) {
	mag := catalog.Mag(t)
	psfMag := catalog.PsfMag(t)
	diff := make([]float64, len(mag))
	for i := range mag {
		diff[i] = psfMag[i] - mag[i]
	}

	ser := Series{Name: "sources", X: mag, Y: diff}
	sc := &Scatter{
		Title:  fmt.Sprintf("PSF vs model magnitude (%d rows)", t.Len()),
		XLabel: "mag",
		YLabel: "psf_mag - mag",
		Config: opts.Config,
	}

	if k := opts.ColorComponent; k >= 0 {
		if k >= t.Schema.NCoeff {
			return nil, fmt.Errorf("color component %d out of range: table has %d coefficients", k, t.Schema.NCoeff)
		}
		ser.C = make([]float64, t.Len())
		for i := range t.Rows {
			ser.C[i], _ = t.Rows[i].FluxFraction(k)
		}
		sc.CLabel = fmt.Sprintf("coeff[%d]/flux", k)
	}
	sc.Series = []Series{ser}
	return sc.Render()
}

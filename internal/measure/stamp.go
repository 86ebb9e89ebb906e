package measure

import (
	"fmt"
	"math"

	"github.com/dbsmedya/shapecat/internal/types"
)

// Stamp is the fitted region of one source, row-major with origin (X0, Y0).
// Pixels outside the exposure are NaN in every plane; excluded pixels keep
// their data and model values but are false in Used.
type Stamp struct {
	X0, Y0   int
	Width    int
	Height   int
	CenterX  float64
	CenterY  float64
	Data     []float64
	Model    []float64
	Residual []float64
	Used     []bool
}

// At returns the plane offset of stamp pixel (i, j).
func (s *Stamp) At(i, j int) int {
	return j*s.Width + i
}

// Stamp renders data, model and residual for a successful measurement of src.
func (f *Fitter) Stamp(src types.Source, res Result) (*Stamp, error) {
	if res.Failed() {
		return nil, fmt.Errorf("source %d has status %s", src.ID, StatusString(res.Status))
	}
	if len(res.Coefficients) != f.cfg.NCoeff() {
		return nil, fmt.Errorf("result has %d coefficients, fitter expects %d", len(res.Coefficients), f.cfg.NCoeff())
	}

	cx, cy, half, status := f.footprint(src)
	if status != 0 {
		return nil, fmt.Errorf("source %d footprint: %s", src.ID, StatusString(status))
	}

	size := 2*half + 1
	st := &Stamp{
		X0:       cx - half,
		Y0:       cy - half,
		Width:    size,
		Height:   size,
		CenterX:  src.X,
		CenterY:  src.Y,
		Data:     make([]float64, size*size),
		Model:    make([]float64, size*size),
		Residual: make([]float64, size*size),
		Used:     make([]bool, size*size),
	}

	sigma := f.exp.PSF.Sigma
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			x, y := st.X0+i, st.Y0+j
			o := st.At(i, j)
			idx, ok := f.exp.Index(x, y)
			if !ok {
				st.Data[o], st.Model[o], st.Residual[o] = math.NaN(), math.NaN(), math.NaN()
				continue
			}
			model := Profile(float64(x)-src.X, float64(y)-src.Y, res.R, res.E1, res.E2, sigma, f.cfg.Components, res.Coefficients)
			st.Data[o] = f.exp.Image[idx]
			st.Model[o] = model
			st.Residual[o] = st.Data[o] - model
			st.Used[o] = f.usable(idx)
		}
	}
	return st, nil
}

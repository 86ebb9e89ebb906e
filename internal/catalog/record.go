package catalog

import (
	"fmt"
	"math"
	"slices"

	"github.com/dbsmedya/shapecat/internal/measure"
)

// Record is one row of the measurement table.
// Index, the grid indices, Covariance, GridRadius and Objective are only
// populated in the extended variant.
type Record struct {
	Dataset    int32
	ID         int64
	Index      int32
	PsfFlux    float64
	PsfFluxErr float64
	X          float64
	Y          float64
	Ixx        float64
	Iyy        float64
	Ixy        float64
	Status     int64
	Flux       float64
	FluxErr    float64
	E1         float64
	E2         float64
	R          float64
	RIndex     int32
	E1Index    int32
	E2Index    int32
	SrcFlags   int64
	Coeff      []float64
	Covariance []float64
	GridRadius []float64
	Objective  []float64
}

// Valid reports whether the fit succeeded.
func (r *Record) Valid() bool {
	return r.Status == 0
}

// FluxFraction returns coefficient k as a fraction of the total flux.
func (r *Record) FluxFraction(k int) (float64, error) {
	if k < 0 || k >= len(r.Coeff) {
		return math.NaN(), fmt.Errorf("component %d out of range [0, %d)", k, len(r.Coeff))
	}
	return r.Coeff[k] / r.Flux, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Coeff = slices.Clone(r.Coeff)
	r.Covariance = slices.Clone(r.Covariance)
	r.GridRadius = slices.Clone(r.GridRadius)
	r.Objective = slices.Clone(r.Objective)
	return r
}

// scalar returns a scalar field by column name as float64.
func (r *Record) scalar(name string) (float64, bool) {
	switch name {
	case "dataset":
		return float64(r.Dataset), true
	case "id":
		return float64(r.ID), true
	case "index":
		return float64(r.Index), true
	case "psf_flux":
		return r.PsfFlux, true
	case "psf_flux_err":
		return r.PsfFluxErr, true
	case "x":
		return r.X, true
	case "y":
		return r.Y, true
	case "ixx":
		return r.Ixx, true
	case "iyy":
		return r.Iyy, true
	case "ixy":
		return r.Ixy, true
	case "status":
		return float64(r.Status), true
	case "flux":
		return r.Flux, true
	case "flux_err":
		return r.FluxErr, true
	case "e1":
		return r.E1, true
	case "e2":
		return r.E2, true
	case "r":
		return r.R, true
	case "r_index":
		return float64(r.RIndex), true
	case "e1_index":
		return float64(r.E1Index), true
	case "e2_index":
		return float64(r.E2Index), true
	case "src_flags":
		return float64(r.SrcFlags), true
	}
	return 0, false
}

// array returns an array field by column name.
func (r *Record) array(name string) ([]float64, bool) {
	switch name {
	case "coeff":
		return r.Coeff, true
	case "covariance":
		return r.Covariance, true
	case "grid_radius":
		return r.GridRadius, true
	case "objective":
		return r.Objective, true
	}
	return nil, false
}

// Result converts the stored fit back into a measurement result.
func (r *Record) Result() measure.Result {
	return measure.Result{
		Status:       r.Status,
		Flux:         r.Flux,
		FluxErr:      r.FluxErr,
		E1:           r.E1,
		E2:           r.E2,
		R:            r.R,
		RIndex:       int(r.RIndex),
		E1Index:      int(r.E1Index),
		E2Index:      int(r.E2Index),
		Coefficients: slices.Clone(r.Coeff),
		Covariance:   slices.Clone(r.Covariance),
		GridRadius:   slices.Clone(r.GridRadius),
		Objective:    slices.Clone(r.Objective),
	}
}

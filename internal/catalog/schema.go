// Package catalog holds the measurement table: its record layout, the builder
// that fills it from a dataset store, row filters and derived quantities.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/shapecat/internal/measure"
)

// ErrSchemaMismatch is returned when a table or file does not match the expected layout.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Variant selects the record layout.
type Variant uint8

const (
	// Basic records carry the scalar outputs and the coefficient vector.
	Basic Variant = 1
	// Extended records add the dataset-local index, grid indices, covariance and grids.
	Extended Variant = 2
)

func (v Variant) String() string {
	switch v {
	case Basic:
		return "basic"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// ParseVariant converts a configuration value.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "basic":
		return Basic, nil
	case "extended":
		return Extended, nil
	default:
		return 0, fmt.Errorf("unknown variant %q", s)
	}
}

// Kind is the storage type of a column.
type Kind uint8

const (
	Int32 Kind = iota + 1
	Int64
	Float64
)

func (k Kind) String() string {
	switch k {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Size returns the encoded width of one element.
func (k Kind) Size() int {
	if k == Int32 {
		return 4
	}
	return 8
}

// Column describes one field of a record. Len is 0 for scalars.
type Column struct {
	Name string
	Kind Kind
	Len  int
}

// Width returns the number of elements the column holds per row.
func (c Column) Width() int {
	if c.Len == 0 {
		return 1
	}
	return c.Len
}

// Schema fixes the record layout of a table.
type Schema struct {
	Variant       Variant
	NCoeff        int
	NRadius       int
	Ellipticities []float64
}

// NewSchema derives the layout produced by a fitter configuration.
func NewSchema(v Variant, cfg measure.Config) Schema {
	return Schema{
		Variant:       v,
		NCoeff:        cfg.NCoeff(),
		NRadius:       cfg.NRadius(),
		Ellipticities: slices.Clone(cfg.Ellipticities),
	}
}

// NEll is the number of ellipticity grid values.
func (s Schema) NEll() int {
	return len(s.Ellipticities)
}

// ObjectiveLen is the number of objective values per extended record.
func (s Schema) ObjectiveLen() int {
	return s.NRadius * s.NEll() * s.NEll()
}

// Extended reports whether the schema uses the extended layout.
func (s Schema) Extended() bool {
	return s.Variant == Extended
}

// Validate checks the schema is self-consistent.
func (s Schema) Validate() error {
	if s.Variant != Basic && s.Variant != Extended {
		return fmt.Errorf("%w: unknown %s", ErrSchemaMismatch, s.Variant)
	}
	if s.NCoeff <= 0 {
		return fmt.Errorf("%w: coefficient count must be positive", ErrSchemaMismatch)
	}
	if s.Extended() && (s.NRadius <= 0 || s.NEll() == 0) {
		return fmt.Errorf("%w: extended schema needs a radius and ellipticity grid", ErrSchemaMismatch)
	}
	return nil
}

// Equal compares two schemas, including the exact bits of the ellipticity grid.
func (s Schema) Equal(o Schema) bool {
	if s.Variant != o.Variant || s.NCoeff != o.NCoeff || s.NRadius != o.NRadius || len(s.Ellipticities) != len(o.Ellipticities) {
		return false
	}
	for i := range s.Ellipticities {
		if math.Float64bits(s.Ellipticities[i]) != math.Float64bits(o.Ellipticities[i]) {
			return false
		}
	}
	return true
}

// Columns lists the record fields in storage order.
func (s Schema) Columns() *orderedmap.OrderedMap[string, Column] {
	cols := orderedmap.NewOrderedMap[string, Column]()
	add := func(name string, kind Kind, n int) {
		cols.Set(name, Column{Name: name, Kind: kind, Len: n})
	}

	add("dataset", Int32, 0)
	add("id", Int64, 0)
	if s.Extended() {
		add("index", Int32, 0)
	}
	add("psf_flux", Float64, 0)
	add("psf_flux_err", Float64, 0)
	add("x", Float64, 0)
	add("y", Float64, 0)
	add("ixx", Float64, 0)
	add("iyy", Float64, 0)
	add("ixy", Float64, 0)
	add("status", Int64, 0)
	add("flux", Float64, 0)
	add("flux_err", Float64, 0)
	add("e1", Float64, 0)
	add("e2", Float64, 0)
	add("r", Float64, 0)
	if s.Extended() {
		add("r_index", Int32, 0)
		add("e1_index", Int32, 0)
		add("e2_index", Int32, 0)
	}
	add("src_flags", Int64, 0)
	add("coeff", Float64, s.NCoeff)
	if s.Extended() {
		add("covariance", Float64, s.NCoeff*s.NCoeff)
		add("grid_radius", Float64, s.NRadius)
		add("objective", Float64, s.ObjectiveLen())
	}
	return cols
}

// RowSize returns the encoded size of one record in bytes.
func (s Schema) RowSize() int {
	cols := s.Columns()
	size := 0
	for el := cols.Front(); el != nil; el = el.Next() {
		size += el.Value.Kind.Size() * el.Value.Width()
	}
	return size
}

package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// Table is the concatenation of per-dataset measurements in build order.
// A Table returned by the builder or the loader is not mutated afterwards.
type Table struct {
	Schema Schema
	Rows   []Record
}

// NewTable returns an empty table with the given schema.
func NewTable(s Schema) *Table {
	return &Table{Schema: s}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Validate checks every row against the schema's array sizes.
func (t *Table) Validate() error {
	if err := t.Schema.Validate(); err != nil {
		return err
	}
	for i := range t.Rows {
		if err := t.Schema.checkRecord(&t.Rows[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (s Schema) checkRecord(r *Record) error {
	check := func(name string, got, want int) error {
		if got != want {
			return fmt.Errorf("%w: %s has %d values, expected %d", ErrSchemaMismatch, name, got, want)
		}
		return nil
	}
	if err := check("coeff", len(r.Coeff), s.NCoeff); err != nil {
		return err
	}
	covLen, gridLen, objLen := 0, 0, 0
	if s.Extended() {
		covLen, gridLen, objLen = s.NCoeff*s.NCoeff, s.NRadius, s.ObjectiveLen()
	}
	if err := check("covariance", len(r.Covariance), covLen); err != nil {
		return err
	}
	if err := check("grid_radius", len(r.GridRadius), gridLen); err != nil {
		return err
	}
	return check("objective", len(r.Objective), objLen)
}

// Column returns a column as float64 values. Array columns take an element
// index, as in "coeff[1]".
func (t *Table) Column(name string) ([]float64, error) {
	base, idx, err := parseColumnName(name)
	if err != nil {
		return nil, err
	}
	col, ok := t.Schema.Columns().Get(base)
	if !ok {
		return nil, fmt.Errorf("no column %q in %s table", base, t.Schema.Variant)
	}
	if col.Len == 0 && idx >= 0 {
		return nil, fmt.Errorf("column %q is scalar", base)
	}
	if col.Len > 0 {
		if idx < 0 {
			return nil, fmt.Errorf("column %q needs an element index in [0, %d)", base, col.Len)
		}
		if idx >= col.Len {
			return nil, fmt.Errorf("column %q index %d out of range [0, %d)", base, idx, col.Len)
		}
	}

	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		if col.Len == 0 {
			out[i], _ = t.Rows[i].scalar(base)
			continue
		}
		values, _ := t.Rows[i].array(base)
		out[i] = values[idx]
	}
	return out, nil
}

func parseColumnName(name string) (string, int, error) {
	base, rest, found := strings.Cut(name, "[")
	if !found {
		return name, -1, nil
	}
	digits, ok := strings.CutSuffix(rest, "]")
	if !ok {
		return "", -1, fmt.Errorf("malformed column %q", name)
	}
	idx, err := strconv.Atoi(digits)
	if err != nil || idx < 0 {
		return "", -1, fmt.Errorf("malformed column index in %q", name)
	}
	return base, idx, nil
}

// Select returns a new table holding the rows in mask, in their original order.
func (t *Table) Select(mask *roaring.Bitmap) *Table {
	out := &Table{Schema: t.Schema, Rows: make([]Record, 0, mask.GetCardinality())}
	it := mask.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		if i < len(t.Rows) {
			out.Rows = append(out.Rows, t.Rows[i])
		}
	}
	return out
}

// Find returns the position of the record with the given dataset and source id.
func (t *Table) Find(dataset int32, id int64) (int, bool) {
	for i := range t.Rows {
		if t.Rows[i].Dataset == dataset && t.Rows[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// FindIndex returns the position of the record with the given dataset-local index.
// Only extended tables store the index.
func (t *Table) FindIndex(dataset int32, index int32) (int, error) {
	if !t.Schema.Extended() {
		return -1, fmt.Errorf("%s tables do not store the dataset-local index", t.Schema.Variant)
	}
	for i := range t.Rows {
		if t.Rows[i].Dataset == dataset && t.Rows[i].Index == index {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no record with index %d in dataset %d", index, dataset)
}

// Datasets returns the distinct dataset ids in row order.
func (t *Table) Datasets() []int32 {
	var out []int32
	seen := make(map[int32]bool)
	for i := range t.Rows {
		d := t.Rows[i].Dataset
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

package catalog

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/dbsmedya/shapecat/internal/types"
)

// FilterOptions selects rows on load. Enabled filters are intersected, so
// their order does not matter and applying them twice changes nothing.
type FilterOptions struct {
	Status   bool   // keep status == 0
	Flux     bool   // keep flux > 0
	Flags    bool   // drop rows whose src_flags intersect BadFlags
	Dataset  *int32 // keep one dataset
	BadFlags int64  // types.FlagsBad when zero
}

// DefaultFilterOptions enables the status, flux and flags filters.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Status: true, Flux: true, Flags: true}
}

// NoFilters keeps every row.
func NoFilters() FilterOptions {
	return FilterOptions{}
}

// Active reports whether any filter is enabled.
func (o FilterOptions) Active() bool {
	return o.Status || o.Flux || o.Flags || o.Dataset != nil
}

func (o FilterOptions) badFlags() int64 {
	if o.BadFlags == 0 {
		return types.FlagsBad
	}
	return o.BadFlags
}

// rowsWhere returns the bitmap of row positions satisfying keep.
func rowsWhere(t *Table, keep func(*Record) bool) *roaring.Bitmap {
	bm := roaring.New()
	for i := range t.Rows {
		if keep(&t.Rows[i]) {
			bm.Add(uint32(i))
		}
	}
	return bm
}

// Mask returns the positions of the rows that pass every enabled filter.
func (o FilterOptions) Mask(t *Table) *roaring.Bitmap {
	mask := roaring.New()
	mask.AddRange(0, uint64(len(t.Rows)))

	if o.Status {
		mask.And(rowsWhere(t, func(r *Record) bool { return r.Status == 0 }))
	}
	if o.Flux {
		mask.And(rowsWhere(t, func(r *Record) bool { return r.Flux > 0 }))
	}
	if o.Dataset != nil {
		ds := *o.Dataset
		mask.And(rowsWhere(t, func(r *Record) bool { return r.Dataset == ds }))
	}
	if o.Flags {
		bad := o.badFlags()
		mask.And(rowsWhere(t, func(r *Record) bool { return r.SrcFlags&bad == 0 }))
	}
	return mask
}

// Filter returns the rows of t that pass opts. With no filter enabled it returns t.
func Filter(t *Table, opts FilterOptions) *Table {
	if !opts.Active() {
		return t
	}
	return t.Select(opts.Mask(t))
}

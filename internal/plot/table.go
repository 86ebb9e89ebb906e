package plot

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/measure"
)

// DefaultColumns is the listing used when no columns are requested.
var DefaultColumns = []string{"dataset", "id", "status", "flux", "psf_flux", "e1", "e2", "r", "src_flags"}

// Rows writes up to limit rows of the named columns as an aligned table.
// A limit of zero or less writes every row.
func Rows(w io.Writer, t *catalog.Table, columns []string, limit int) error {
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	n := t.Len()
	if limit > 0 && limit < n {
		n = limit
	}

	cells := make([][]string, n+1)
	cells[0] = columns
	for i := 1; i <= n; i++ {
		cells[i] = make([]string, len(columns))
	}
	for c, name := range columns {
		values, err := t.Column(name)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if v, ok := intField(&t.Rows[i], name); ok {
				cells[i+1][c] = fmt.Sprint(v)
				continue
			}
			cells[i+1][c] = fmt.Sprintf("%.6g", values[i])
		}
	}

	widths := make([]int, len(columns))
	for _, row := range cells {
		for c, s := range row {
			widths[c] = max(widths[c], runewidth.StringWidth(s))
		}
	}
	for _, row := range cells {
		parts := make([]string, len(row))
		for c, s := range row {
			parts[c] = runewidth.FillLeft(s, widths[c])
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, "  ")); err != nil {
			return err
		}
	}
	if n < t.Len() {
		_, err := fmt.Fprintf(w, "... %d more rows\n", t.Len()-n)
		return err
	}
	return nil
}

// intField returns integer columns without a float64 round trip.
func intField(r *catalog.Record, name string) (int64, bool) {
	switch name {
	case "dataset":
		return int64(r.Dataset), true
	case "id":
		return r.ID, true
	case "index":
		return int64(r.Index), true
	case "status":
		return r.Status, true
	case "r_index":
		return int64(r.RIndex), true
	case "e1_index":
		return int64(r.E1Index), true
	case "e2_index":
		return int64(r.E2Index), true
	case "src_flags":
		return r.SrcFlags, true
	}
	return 0, false
}

// Summary writes the schema, row counts, status breakdown and magnitude range of t.
func Summary(w io.Writer, t *catalog.Table) {
	valid := 0
	statuses := make(map[string]int)
	mags := newBounds()
	for i := range t.Rows {
		r := &t.Rows[i]
		statuses[measure.StatusString(r.Status)]++
		if r.Valid() {
			valid++
		}
		if m := catalog.Magnitude(r.Flux); finite(m) {
			mags.add(m)
		}
	}

	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	slices.Sort(names)
	var breakdown []string
	for _, name := range names {
		breakdown = append(breakdown, fmt.Sprintf("%s=%d", name, statuses[name]))
	}

	magRange := "n/a"
	if mags.valid() {
		magRange = fmt.Sprintf("%.3f .. %.3f", mags.min, mags.max)
	}

	fields := [][2]string{
		{"variant", t.Schema.Variant.String()},
		{"coefficients", fmt.Sprint(t.Schema.NCoeff)},
	}
	if t.Schema.Extended() {
		fields = append(fields,
			[2]string{"radius grid", fmt.Sprint(t.Schema.NRadius)},
			[2]string{"ellipticities", formatFloats(t.Schema.Ellipticities)},
		)
	}
	fields = append(fields,
		[2]string{"rows", fmt.Sprint(t.Len())},
		[2]string{"datasets", fmt.Sprint(t.Datasets())},
		[2]string{"valid", fmt.Sprintf("%d (%.1f%%)", valid, percent(valid, t.Len()))},
		[2]string{"status", strings.Join(breakdown, "  ")},
		[2]string{"mag range", magRange},
	)
	writeFields(w, fields)
}

func percent(n, total int) float64 {
	if total == 0 {
		return math.NaN()
	}
	return 100 * float64(n) / float64(total)
}

package tablefile

import (
	"encoding/binary"
	"math"

	"github.com/dbsmedya/shapecat/internal/catalog"
)

// field returns a pointer to the record field stored in the named column.
func field(r *catalog.Record, name string) any {
	switch name {
	case "dataset":
		return &r.Dataset
	case "id":
		return &r.ID
	case "index":
		return &r.Index
	case "psf_flux":
		return &r.PsfFlux
	case "psf_flux_err":
		return &r.PsfFluxErr
	case "x":
		return &r.X
	case "y":
		return &r.Y
	case "ixx":
		return &r.Ixx
	case "iyy":
		return &r.Iyy
	case "ixy":
		return &r.Ixy
	case "status":
		return &r.Status
	case "flux":
		return &r.Flux
	case "flux_err":
		return &r.FluxErr
	case "e1":
		return &r.E1
	case "e2":
		return &r.E2
	case "r":
		return &r.R
	case "r_index":
		return &r.RIndex
	case "e1_index":
		return &r.E1Index
	case "e2_index":
		return &r.E2Index
	case "src_flags":
		return &r.SrcFlags
	case "coeff":
		return &r.Coeff
	case "covariance":
		return &r.Covariance
	case "grid_radius":
		return &r.GridRadius
	case "objective":
		return &r.Objective
	}
	panic("tablefile: no record field for column " + name)
}

func columnNames(s catalog.Schema) ([]string, []int) {
	cols := s.Columns()
	names := make([]string, 0, cols.Len())
	lens := make([]int, 0, cols.Len())
	for el := cols.Front(); el != nil; el = el.Next() {
		names = append(names, el.Key)
		lens = append(lens, el.Value.Len)
	}
	return names, lens
}

func encodePayload(t *catalog.Table) []byte {
	s := t.Schema
	buf := make([]byte, 0, s.NEll()*8+t.Len()*s.RowSize())
	for _, e := range s.Ellipticities {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(e))
	}

	names, _ := columnNames(s)
	for i := range t.Rows {
		r := &t.Rows[i]
		for _, name := range names {
			switch v := field(r, name).(type) {
			case *int32:
				buf = binary.LittleEndian.AppendUint32(buf, uint32(*v))
			case *int64:
				buf = binary.LittleEndian.AppendUint64(buf, uint64(*v))
			case *float64:
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(*v))
			case *[]float64:
				for _, x := range *v {
					buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(x))
				}
			}
		}
	}
	return buf
}

// decodeRows reads n rows. The caller has checked that data holds exactly n rows.
func decodeRows(data []byte, s catalog.Schema, n int) []catalog.Record {
	names, lens := columnNames(s)
	rows := make([]catalog.Record, n)
	off := 0
	for i := range rows {
		r := &rows[i]
		for c, name := range names {
			switch v := field(r, name).(type) {
			case *int32:
				*v = int32(binary.LittleEndian.Uint32(data[off:]))
				off += 4
			case *int64:
				*v = int64(binary.LittleEndian.Uint64(data[off:]))
				off += 8
			case *float64:
				*v = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
				off += 8
			case *[]float64:
				vals := make([]float64, lens[c])
				for k := range vals {
					vals[k] = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
					off += 8
				}
				*v = vals
			}
		}
	}
	return rows
}

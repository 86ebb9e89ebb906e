package datastore

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// Pixel planes are stored as packed little-endian arrays.

func encodeFloats(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte, n int) ([]float64, error) {
	if len(buf) != 8*n {
		return nil, fmt.Errorf("float plane has %d bytes, expected %d", len(buf), 8*n)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}

func encodeMask(values []uint16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

func decodeMask(buf []byte, n int) ([]uint16, error) {
	if len(buf) != 2*n {
		return nil, fmt.Errorf("mask plane has %d bytes, expected %d", len(buf), 2*n)
	}
	values := make([]uint16, n)
	for i := range values {
		values[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}
	return values, nil
}

// nullable maps NaN to SQL NULL; neither MySQL nor SQLite keeps NaN in a DOUBLE column.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

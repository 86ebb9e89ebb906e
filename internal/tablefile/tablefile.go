// Package tablefile encodes measurement tables as versioned binary files.
//
// A file is a 64-byte little-endian header followed by the payload: the
// ellipticity grid, then every row with its columns in schema order. The
// payload may be compressed with lz4 or zstd. Floats are stored as raw IEEE
// bits, so a decoded table is bit-identical to the encoded one.
package tablefile

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/google/uuid"

	"github.com/dbsmedya/shapecat/internal/catalog"
)

const (
	// Magic identifies a table file.
	Magic = "SCT1"
	// Version is the current format version.
	Version uint16 = 1
	// HeaderSize is the encoded header length.
	HeaderSize = 64

	// maxExpansion bounds the declared payload size of a compressed file.
	maxExpansion = 1 << 16
)

var (
	// ErrCorrupt is returned when a file fails a structural or checksum check.
	ErrCorrupt = errors.New("corrupt table file")
	// ErrSchemaMismatch is returned when a file's layout differs from the expected one.
	ErrSchemaMismatch = catalog.ErrSchemaMismatch
)

// Header is the fixed-size file preamble.
type Header struct {
	Version     uint16
	Variant     catalog.Variant
	Compression Compression
	NCoeff      int
	NRadius     int
	NEll        int
	Rows        uint64
	PayloadSize uint64
	StoredSize  uint64
	SchemaCRC   uint32
	PayloadCRC  uint32
	BuildID     uuid.UUID
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	buf[6] = byte(h.Variant)
	buf[7] = byte(h.Compression)
	binary.LittleEndian.PutUint16(buf[8:], uint16(h.NCoeff))
	binary.LittleEndian.PutUint16(buf[10:], uint16(h.NRadius))
	binary.LittleEndian.PutUint16(buf[12:], uint16(h.NEll))
	// 14:16 reserved
	binary.LittleEndian.PutUint64(buf[16:], h.Rows)
	binary.LittleEndian.PutUint64(buf[24:], h.PayloadSize)
	binary.LittleEndian.PutUint64(buf[32:], h.StoredSize)
	binary.LittleEndian.PutUint32(buf[40:], h.SchemaCRC)
	binary.LittleEndian.PutUint32(buf[44:], h.PayloadCRC)
	copy(buf[48:64], h.BuildID[:])
	return buf
}

// ReadHeader parses the header without touching the payload.
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if string(data[0:4]) != Magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[0:4])
	}
	h.Version = binary.LittleEndian.Uint16(data[4:])
	h.Variant = catalog.Variant(data[6])
	h.Compression = Compression(data[7])
	h.NCoeff = int(binary.LittleEndian.Uint16(data[8:]))
	h.NRadius = int(binary.LittleEndian.Uint16(data[10:]))
	h.NEll = int(binary.LittleEndian.Uint16(data[12:]))
	h.Rows = binary.LittleEndian.Uint64(data[16:])
	h.PayloadSize = binary.LittleEndian.Uint64(data[24:])
	h.StoredSize = binary.LittleEndian.Uint64(data[32:])
	h.SchemaCRC = binary.LittleEndian.Uint32(data[40:])
	h.PayloadCRC = binary.LittleEndian.Uint32(data[44:])
	copy(h.BuildID[:], data[48:64])
	return h, nil
}

// File is a decoded or freshly encoded table file.
type File struct {
	Header Header
	Table  *catalog.Table
	// Digest is the hex SHA-256 of the uncompressed payload.
	Digest string
}

// Fingerprint is the CRC32 of the schema's ordered column listing.
func Fingerprint(s catalog.Schema) uint32 {
	h := crc32.NewIEEE()
	cols := s.Columns()
	for el := cols.Front(); el != nil; el = el.Next() {
		fmt.Fprintf(h, "%s:%s:%d\n", el.Key, el.Value.Kind, el.Value.Len)
	}
	return h.Sum32()
}

// Encode serializes t. A nil build id is replaced by a fresh random one.
func Encode(t *catalog.Table, c Compression, buildID uuid.UUID) ([]byte, *File, error) {
	if err := t.Validate(); err != nil {
		return nil, nil, err
	}
	s := t.Schema
	if s.NCoeff > math.MaxUint16 || s.NRadius > math.MaxUint16 || s.NEll() > math.MaxUint16 {
		return nil, nil, fmt.Errorf("%w: grid dimensions exceed the file format", ErrSchemaMismatch)
	}
	if buildID == uuid.Nil {
		buildID = uuid.New()
	}

	payload := encodePayload(t)
	stored, used, err := compress(payload, c)
	if err != nil {
		return nil, nil, err
	}

	h := Header{
		Version:     Version,
		Variant:     s.Variant,
		Compression: used,
		NCoeff:      s.NCoeff,
		NRadius:     s.NRadius,
		NEll:        s.NEll(),
		Rows:        uint64(t.Len()),
		PayloadSize: uint64(len(payload)),
		StoredSize:  uint64(len(stored)),
		SchemaCRC:   Fingerprint(s),
		PayloadCRC:  crc32.ChecksumIEEE(payload),
		BuildID:     buildID,
	}

	out := make([]byte, 0, HeaderSize+len(stored))
	out = append(out, h.marshal()...)
	out = append(out, stored...)
	return out, &File{Header: h, Table: t, Digest: digest(payload)}, nil
}

// Decode parses a file. When expect is non-nil the file's schema must equal it.
func Decode(data []byte, expect *catalog.Schema) (*File, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrSchemaMismatch, h.Version)
	}
	if h.StoredSize != uint64(len(data)-HeaderSize) {
		return nil, fmt.Errorf("%w: stored payload is %d bytes, header says %d", ErrCorrupt, len(data)-HeaderSize, h.StoredSize)
	}

	// Ellipticity values are not part of the column layout, so zeros will do here.
	schema := catalog.Schema{Variant: h.Variant, NCoeff: h.NCoeff, NRadius: h.NRadius, Ellipticities: make([]float64, h.NEll)}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if Fingerprint(schema) != h.SchemaCRC {
		return nil, fmt.Errorf("%w: column layout fingerprint %08x, expected %08x", ErrSchemaMismatch, h.SchemaCRC, Fingerprint(schema))
	}

	head, rs := uint64(h.NEll)*8, uint64(schema.RowSize())
	if h.Rows > (math.MaxInt64-head)/rs {
		return nil, fmt.Errorf("%w: row count %d out of range", ErrCorrupt, h.Rows)
	}
	want := head + h.Rows*rs
	if h.PayloadSize != want {
		return nil, fmt.Errorf("%w: payload size %d does not fit %d rows", ErrCorrupt, h.PayloadSize, h.Rows)
	}
	if h.Compression != CompressionNone && h.PayloadSize > h.StoredSize*maxExpansion {
		return nil, fmt.Errorf("%w: implausible payload size %d", ErrCorrupt, h.PayloadSize)
	}

	payload, err := decompress(data[HeaderSize:], h.Compression, int(h.PayloadSize))
	if err != nil {
		return nil, err
	}
	if crc := crc32.ChecksumIEEE(payload); crc != h.PayloadCRC {
		return nil, fmt.Errorf("%w: payload checksum %08x, expected %08x", ErrCorrupt, crc, h.PayloadCRC)
	}

	for i := range schema.Ellipticities {
		schema.Ellipticities[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
	}
	if expect != nil && !expect.Equal(schema) {
		return nil, fmt.Errorf("%w: file holds %s (ncoeff=%d nradius=%d nell=%d), expected %s (ncoeff=%d nradius=%d nell=%d)",
			ErrSchemaMismatch, schema.Variant, schema.NCoeff, schema.NRadius, schema.NEll(),
			expect.Variant, expect.NCoeff, expect.NRadius, expect.NEll())
	}

	t := &catalog.Table{Schema: schema, Rows: decodeRows(payload[h.NEll*8:], schema, int(h.Rows))}
	return &File{Header: h, Table: t, Digest: digest(payload)}, nil
}

// Digest returns the hex SHA-256 of the table's uncompressed payload.
func Digest(t *catalog.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return digest(encodePayload(t)), nil
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

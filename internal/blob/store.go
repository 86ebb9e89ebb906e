// Package blob stores catalog files by name, on the local file system or in
// an S3-compatible bucket.
package blob

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
// It maps to os.ErrNotExist so errors.Is works against either.
var ErrNotFound = os.ErrNotExist

// Store reads and writes whole blobs.
type Store interface {
	// Put replaces the blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the blob contents or an error satisfying errors.Is(err, ErrNotFound).
	Get(ctx context.Context, name string) ([]byte, error)
}

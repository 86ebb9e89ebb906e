package tablefile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
)

// Save encodes t and writes it under name to store, then to each mirror.
// Every copy carries the same bytes and build id.
func Save(ctx context.Context, store blob.Store, name string, t *catalog.Table, c Compression, mirrors ...blob.Store) (*File, error) {
	data, f, err := Encode(t, c, uuid.New())
	if err != nil {
		return nil, fmt.Errorf("failed to encode table: %w", err)
	}
	for _, s := range append([]blob.Store{store}, mirrors...) {
		if err := s.Put(ctx, name, data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return f, nil
}

// Load reads the file under name, checks it against expect when non-nil and
// applies the row filters. The returned File keeps the unfiltered digest.
func Load(ctx context.Context, store blob.Store, name string, expect *catalog.Schema, opts catalog.FilterOptions) (*File, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	f, err := Decode(data, expect)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	f.Table = catalog.Filter(f.Table, opts)
	return f, nil
}

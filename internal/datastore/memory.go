package datastore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dbsmedya/shapecat/internal/types"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	datasets map[int]Dataset
}

// NewMemoryStore returns a store holding the given datasets.
func NewMemoryStore(datasets ...Dataset) *MemoryStore {
	m := &MemoryStore{datasets: make(map[int]Dataset)}
	for _, d := range datasets {
		m.Put(d)
	}
	return m
}

// Put adds or replaces a dataset.
func (m *MemoryStore) Put(d Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Sources = slices.Clone(d.Sources)
	m.datasets[d.ID] = d
}

func (m *MemoryStore) get(id int) (Dataset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.datasets[id]
	return d, ok
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, id int) (bool, error) {
	_, ok := m.get(id)
	return ok, nil
}

// PSF implements Store.
func (m *MemoryStore) PSF(_ context.Context, id int) (*types.PSF, error) {
	d, ok := m.get(id)
	if !ok {
		return nil, fmt.Errorf("psf of dataset %d: %w", id, ErrNotFound)
	}
	psf := d.PSF
	return &psf, nil
}

// Exposure implements Store. The planes are shared with the stored dataset.
func (m *MemoryStore) Exposure(_ context.Context, id int) (*types.Exposure, error) {
	d, ok := m.get(id)
	if !ok || d.Exposure == nil {
		return nil, fmt.Errorf("exposure of dataset %d: %w", id, ErrNotFound)
	}
	exp := *d.Exposure
	exp.PSF = nil
	return &exp, nil
}

// Sources implements Store.
func (m *MemoryStore) Sources(_ context.Context, id int) ([]types.Source, error) {
	d, ok := m.get(id)
	if !ok {
		return nil, fmt.Errorf("sources of dataset %d: %w", id, ErrNotFound)
	}
	return slices.Clone(d.Sources), nil
}

// Datasets implements Store.
func (m *MemoryStore) Datasets(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.datasets))
	for id := range m.datasets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Summaries implements Store.
func (m *MemoryStore) Summaries(ctx context.Context) ([]Summary, error) {
	ids, _ := m.Datasets(ctx)
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		d, _ := m.get(id)
		sum := Summary{ID: id, PSFSigma: d.PSF.Sigma, Sources: len(d.Sources)}
		if d.Exposure != nil {
			sum.HasExposure = true
			sum.Width = d.Exposure.Width
			sum.Height = d.Exposure.Height
		}
		out = append(out, sum)
	}
	return out, nil
}

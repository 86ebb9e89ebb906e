package config

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Store defaults
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected store driver 'sqlite', got %s", cfg.Store.Driver)
	}
	if cfg.Store.Port != 3306 {
		t.Errorf("expected store port 3306, got %d", cfg.Store.Port)
	}
	if cfg.Store.Tables.Sources != "sources" {
		t.Errorf("expected sources table 'sources', got %s", cfg.Store.Tables.Sources)
	}

	// Dataset defaults match the ten-dataset layout of the reference data
	if len(cfg.Datasets) != 10 {
		t.Errorf("expected 10 default datasets, got %d", len(cfg.Datasets))
	}
	for i, id := range cfg.Datasets {
		if id != i {
			t.Errorf("expected dataset %d at position %d, got %d", i, i, id)
		}
	}

	// Measurement defaults
	if cfg.Measurement.Variant != "extended" {
		t.Errorf("expected variant 'extended', got %s", cfg.Measurement.Variant)
	}
	if len(cfg.Measurement.Components) != 3 {
		t.Errorf("expected 3 components, got %d", len(cfg.Measurement.Components))
	}
	if cfg.Measurement.BadMask != 31 {
		t.Errorf("expected bad_mask 31, got %d", cfg.Measurement.BadMask)
	}

	// Output defaults
	if cfg.Output.Compression != "zstd" {
		t.Errorf("expected compression 'zstd', got %s", cfg.Output.Compression)
	}
	if cfg.Output.Remote.Enabled {
		t.Error("expected remote output disabled by default")
	}

	// Filter defaults mirror the reference loader
	if !cfg.Filters.Status || !cfg.Filters.Flux || !cfg.Filters.Flags {
		t.Errorf("expected all filters enabled by default, got %+v", cfg.Filters)
	}
	if cfg.Filters.Dataset != nil {
		t.Errorf("expected no dataset filter by default, got %d", *cfg.Filters.Dataset)
	}

	// Verification defaults
	if cfg.Verification.Method != "count" {
		t.Errorf("expected verification method 'count', got %s", cfg.Verification.Method)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected logging level 'info', got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestMeasurementConfig_Extended(t *testing.T) {
	if !(MeasurementConfig{Variant: "extended"}).Extended() {
		t.Error("expected extended variant to report Extended()")
	}
	if (MeasurementConfig{Variant: "basic"}).Extended() {
		t.Error("expected basic variant to not report Extended()")
	}
}

func TestMeasurementConfig_GridSize(t *testing.T) {
	m := MeasurementConfig{
		RadiusFactors: []float64{0.5, 1, 2},
		Ellipticities: []float64{-0.3, 0, 0.3, 0.6},
	}
	if got := m.GridSize(); got != 48 {
		t.Errorf("expected grid size 48, got %d", got)
	}
}

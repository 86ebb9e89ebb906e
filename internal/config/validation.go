package config

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// tableNamePattern restricts store table names to plain identifiers.
var tableNamePattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateDatasets()...)
	errors = append(errors, c.validateMeasurement()...)
	errors = append(errors, c.validateOutput()...)
	errors = append(errors, c.validateVerification()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors
	s := &c.Store

	switch s.Driver {
	case "sqlite":
		if s.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "store.path",
				Message: "path is required for the sqlite driver",
			})
		}
	case "mysql":
		if s.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "store.host",
				Message: "host is required for the mysql driver",
			})
		}
		if s.Port <= 0 || s.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "store.port",
				Message: "port must be between 1 and 65535",
			})
		}
		if s.User == "" {
			errors = append(errors, ValidationError{
				Field:   "store.user",
				Message: "user is required for the mysql driver",
			})
		}
		if s.Database == "" {
			errors = append(errors, ValidationError{
				Field:   "store.database",
				Message: "database name is required for the mysql driver",
			})
		}
		validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
		if !validTLS[s.TLS] {
			errors = append(errors, ValidationError{
				Field:   "store.tls",
				Message: "tls must be 'disable', 'preferred', or 'required'",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "driver must be 'sqlite' or 'mysql'",
		})
	}

	if s.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.max_connections",
			Message: "max_connections cannot be negative",
		})
	}
	if s.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	tables := map[string]string{
		"store.tables.datasets":  s.Tables.Datasets,
		"store.tables.exposures": s.Tables.Exposures,
		"store.tables.sources":   s.Tables.Sources,
	}
	for _, field := range []string{"store.tables.datasets", "store.tables.exposures", "store.tables.sources"} {
		if !tableNamePattern.MatchString(tables[field]) {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "table name must contain only alphanumeric characters and underscores",
			})
		}
	}

	return errors
}

func (c *Config) validateDatasets() ValidationErrors {
	var errors ValidationErrors

	seen := make(map[int]bool, len(c.Datasets))
	for i, id := range c.Datasets {
		if id < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("datasets[%d]", i),
				Message: "dataset id cannot be negative",
			})
		}
		if seen[id] {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("datasets[%d]", i),
				Message: fmt.Sprintf("dataset %d listed more than once", id),
			})
		}
		seen[id] = true
	}

	return errors
}

func (c *Config) validateMeasurement() ValidationErrors {
	var errors ValidationErrors
	m := &c.Measurement

	if m.Variant != "basic" && m.Variant != "extended" {
		errors = append(errors, ValidationError{
			Field:   "measurement.variant",
			Message: "variant must be 'basic' or 'extended'",
		})
	}

	if len(m.Components) == 0 {
		errors = append(errors, ValidationError{
			Field:   "measurement.components",
			Message: "at least one component is required",
		})
	}
	for i, s := range m.Components {
		if !(s > 0) || math.IsInf(s, 0) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("measurement.components[%d]", i),
				Message: "component scale must be positive",
			})
		}
	}

	if len(m.RadiusFactors) == 0 {
		errors = append(errors, ValidationError{
			Field:   "measurement.radius_factors",
			Message: "at least one radius factor is required",
		})
	}
	for i, f := range m.RadiusFactors {
		if !(f > 0) || math.IsInf(f, 0) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("measurement.radius_factors[%d]", i),
				Message: "radius factor must be positive",
			})
		}
	}

	if len(m.Ellipticities) == 0 {
		errors = append(errors, ValidationError{
			Field:   "measurement.ellipticities",
			Message: "at least one ellipticity value is required",
		})
	}
	for i, e := range m.Ellipticities {
		if !(e > -1 && e < 1) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("measurement.ellipticities[%d]", i),
				Message: "ellipticity must be in (-1, 1)",
			})
		}
	}

	if !(m.NSigma > 0) {
		errors = append(errors, ValidationError{
			Field:   "measurement.n_sigma",
			Message: "n_sigma must be positive",
		})
	}
	if m.MinHalfSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "measurement.min_half_size",
			Message: "min_half_size must be positive",
		})
	}
	if m.MaxHalfSize < m.MinHalfSize {
		errors = append(errors, ValidationError{
			Field:   "measurement.max_half_size",
			Message: "max_half_size cannot be smaller than min_half_size",
		})
	}
	if m.MinPixels < len(m.Components) {
		errors = append(errors, ValidationError{
			Field:   "measurement.min_pixels",
			Message: "min_pixels must be at least the number of components",
		})
	}
	if !(m.MinRadius > 0) {
		errors = append(errors, ValidationError{
			Field:   "measurement.min_radius",
			Message: "min_radius must be positive",
		})
	}
	if m.BadMask < 0 || m.BadMask > math.MaxUint16 {
		errors = append(errors, ValidationError{
			Field:   "measurement.bad_mask",
			Message: "bad_mask must fit in 16 bits",
		})
	}

	return errors
}

func (c *Config) validateOutput() ValidationErrors {
	var errors ValidationErrors

	if c.Output.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "output.path",
			Message: "path is required",
		})
	}

	validCompression := map[string]bool{"none": true, "lz4": true, "zstd": true, "": true}
	if !validCompression[c.Output.Compression] {
		errors = append(errors, ValidationError{
			Field:   "output.compression",
			Message: "compression must be 'none', 'lz4', or 'zstd'",
		})
	}

	if c.Output.Remote.Enabled {
		if c.Output.Remote.Endpoint == "" {
			errors = append(errors, ValidationError{
				Field:   "output.remote.endpoint",
				Message: "endpoint is required when remote output is enabled",
			})
		}
		if c.Output.Remote.Bucket == "" {
			errors = append(errors, ValidationError{
				Field:   "output.remote.bucket",
				Message: "bucket is required when remote output is enabled",
			})
		}
	}

	return errors
}

func (c *Config) validateVerification() ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"count": true, "sha256": true, "": true}
	if !validMethods[c.Verification.Method] {
		errors = append(errors, ValidationError{
			Field:   "verification.method",
			Message: "method must be 'count' or 'sha256'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

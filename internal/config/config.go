// Package config provides configuration structures and loading for shapecat.
package config

// Config represents the complete application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Datasets     []int              `yaml:"datasets" mapstructure:"datasets"`
	Measurement  MeasurementConfig  `yaml:"measurement" mapstructure:"measurement"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Filters      FilterConfig       `yaml:"filters" mapstructure:"filters"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// StoreConfig describes the dataset store the catalog is built from.
type StoreConfig struct {
	Driver             string      `yaml:"driver" mapstructure:"driver"` // sqlite or mysql
	Path               string      `yaml:"path" mapstructure:"path"`     // sqlite database file
	Host               string      `yaml:"host" mapstructure:"host"`
	Port               int         `yaml:"port" mapstructure:"port"`
	User               string      `yaml:"user" mapstructure:"user"`
	Password           string      `yaml:"password" mapstructure:"password"`
	Database           string      `yaml:"database" mapstructure:"database"`
	TLS                string      `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int         `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int         `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
	Tables             TableConfig `yaml:"tables" mapstructure:"tables"`
}

// TableConfig names the store tables.
type TableConfig struct {
	Datasets  string `yaml:"datasets" mapstructure:"datasets"`
	Exposures string `yaml:"exposures" mapstructure:"exposures"`
	Sources   string `yaml:"sources" mapstructure:"sources"`
}

// MeasurementConfig configures the per-source model fit.
type MeasurementConfig struct {
	Variant       string    `yaml:"variant" mapstructure:"variant"`               // basic or extended
	Components    []float64 `yaml:"components" mapstructure:"components"`         // radius scale of each Gaussian component
	RadiusFactors []float64 `yaml:"radius_factors" mapstructure:"radius_factors"` // multiples of the moment radius
	Ellipticities []float64 `yaml:"ellipticities" mapstructure:"ellipticities"`   // e1/e2 grid values
	NSigma        float64   `yaml:"n_sigma" mapstructure:"n_sigma"`
	MinHalfSize   int       `yaml:"min_half_size" mapstructure:"min_half_size"`
	MaxHalfSize   int       `yaml:"max_half_size" mapstructure:"max_half_size"`
	MinPixels     int       `yaml:"min_pixels" mapstructure:"min_pixels"`
	MinRadius     float64   `yaml:"min_radius" mapstructure:"min_radius"`
	BadMask       int       `yaml:"bad_mask" mapstructure:"bad_mask"`
}

// OutputConfig describes where the catalog file is written.
type OutputConfig struct {
	Path        string       `yaml:"path" mapstructure:"path"`
	Compression string       `yaml:"compression" mapstructure:"compression"` // none, lz4, zstd
	Remote      RemoteConfig `yaml:"remote" mapstructure:"remote"`
}

// RemoteConfig is an optional S3-compatible bucket that receives a copy of the catalog.
type RemoteConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Secure    bool   `yaml:"secure" mapstructure:"secure"`
}

// FilterConfig holds the default row filters applied on load.
type FilterConfig struct {
	Status  bool `yaml:"status" mapstructure:"status"`
	Flux    bool `yaml:"flux" mapstructure:"flux"`
	Flags   bool `yaml:"flags" mapstructure:"flags"`
	Dataset *int `yaml:"dataset,omitempty" mapstructure:"dataset"`
}

// VerificationConfig represents post-build verification settings.
type VerificationConfig struct {
	Method           string `yaml:"method" mapstructure:"method"` // "count" or "sha256"
	SkipVerification bool   `yaml:"skip_verification" mapstructure:"skip_verification"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:             "sqlite",
			Path:               "datasets.db",
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
			Tables: TableConfig{
				Datasets:  "datasets",
				Exposures: "exposures",
				Sources:   "sources",
			},
		},
		Datasets: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		Measurement: MeasurementConfig{
			Variant:       "extended",
			Components:    []float64{0.5, 1.0, 2.0},
			RadiusFactors: []float64{0.5, 0.75, 1.0, 1.5, 2.0},
			Ellipticities: []float64{-0.6, -0.3, 0.0, 0.3, 0.6},
			NSigma:        4,
			MinHalfSize:   4,
			MaxHalfSize:   64,
			MinPixels:     16,
			MinRadius:     0.25,
			BadMask:       31,
		},
		Output: OutputConfig{
			Path:        "catalog.sct",
			Compression: "zstd",
		},
		Filters: FilterConfig{
			Status: true,
			Flux:   true,
			Flags:  true,
		},
		Verification: VerificationConfig{
			Method:           "count",
			SkipVerification: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Extended reports whether the extended record layout is configured.
func (m MeasurementConfig) Extended() bool {
	return m.Variant == "extended"
}

// GridSize returns the number of grid points evaluated per source.
func (m MeasurementConfig) GridSize() int {
	return len(m.RadiusFactors) * len(m.Ellipticities) * len(m.Ellipticities)
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	cfg.Store.Path = expandEnvVar(cfg.Store.Path)
	cfg.Store.Host = expandEnvVar(cfg.Store.Host)
	cfg.Store.User = expandEnvVar(cfg.Store.User)
	cfg.Store.Password = expandEnvVar(cfg.Store.Password)
	cfg.Store.Database = expandEnvVar(cfg.Store.Database)

	cfg.Output.Path = expandEnvVar(cfg.Output.Path)
	cfg.Output.Remote.Endpoint = expandEnvVar(cfg.Output.Remote.Endpoint)
	cfg.Output.Remote.AccessKey = expandEnvVar(cfg.Output.Remote.AccessKey)
	cfg.Output.Remote.SecretKey = expandEnvVar(cfg.Output.Remote.SecretKey)

	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// Overrides holds CLI flag values that take precedence over the file.
type Overrides struct {
	LogLevel    string
	LogFormat   string
	Output      string
	Compression string
	Datasets    []int
	SkipVerify  bool
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.Output != "" {
		c.Output.Path = o.Output
	}
	if o.Compression != "" {
		c.Output.Compression = o.Compression
	}
	if len(o.Datasets) > 0 {
		c.Datasets = append([]int(nil), o.Datasets...)
	}
	if o.SkipVerify {
		c.Verification.SkipVerification = true
	}
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	outputPath  string
	compression string
	skipVerify  bool
)

var rootCmd = &cobra.Command{
	Use:   "shapecat",
	Short: "Galaxy shape measurement catalog builder",
	Long: `A CLI tool that measures the shapes of detected sources in a set of
datasets and writes the results to a versioned catalog file.

Features:
  - PSF-convolved Gaussian-mixture fits over a radius/ellipticity grid
  - Dataset stores in SQLite or MySQL
  - Compressed, checksummed catalog files (lz4 or zstd)
  - Status, flux, dataset and bad-flag filters on load
  - Terminal scatter plots and a single-source viewer`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "shapecat.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Output overrides
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "",
		"Override catalog file path")
	rootCmd.PersistentFlags().StringVar(&compression, "compression", "",
		"Override catalog compression (none, lz4, zstd)")

	// Safety overrides
	rootCmd.PersistentFlags().BoolVar(&skipVerify, "skip-verify", false,
		"Skip catalog verification after build")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	Output      string
	Compression string
	SkipVerify  bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		Output:      outputPath,
		Compression: compression,
		SkipVerify:  skipVerify,
	}
}

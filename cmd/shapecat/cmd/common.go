package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/config"
	"github.com/dbsmedya/shapecat/internal/database"
	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/logger"
	"github.com/dbsmedya/shapecat/internal/measure"
)

// loadConfig reads the config file, applies CLI overrides and validates the result.
// A missing default config file yields the built-in defaults; an explicit
// --config that cannot be read is an error.
func loadConfig(cmd *cobra.Command, datasets []int) (*config.Config, error) {
	configFile := GetConfigFile()

	var cfg *config.Config
	_, statErr := os.Stat(configFile)
	if errors.Is(statErr, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg = config.DefaultConfig()
	} else {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(config.Overrides{
		LogLevel:    overrides.LogLevel,
		LogFormat:   overrides.LogFormat,
		Output:      overrides.Output,
		Compression: overrides.Compression,
		Datasets:    datasets,
		SkipVerify:  overrides.SkipVerify,
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and creates the logger.
func setup(cmd *cobra.Command, datasets []int) (*config.Config, *logger.Logger, error) {
	cfg, err := loadConfig(cmd, datasets)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// openStore connects to the dataset store. The caller closes the manager.
func openStore(ctx context.Context, cfg *config.Config) (*datastore.SQLStore, *database.Manager, error) {
	dbManager := database.NewManager(&cfg.Store)
	if err := dbManager.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to dataset store: %w", err)
	}
	if err := dbManager.Ping(ctx); err != nil {
		dbManager.Close()
		return nil, nil, fmt.Errorf("dataset store connection failed: %w", err)
	}
	store, err := datastore.NewSQLStore(dbManager.Store, dbManager.Driver(), cfg.Store.Tables)
	if err != nil {
		dbManager.Close()
		return nil, nil, err
	}
	return store, dbManager, nil
}

// schemaFor returns the record layout and fitter configuration of cfg.
func schemaFor(cfg *config.Config) (catalog.Schema, measure.Config, error) {
	mcfg := measure.FromConfig(cfg.Measurement)
	variant, err := catalog.ParseVariant(cfg.Measurement.Variant)
	if err != nil {
		return catalog.Schema{}, mcfg, err
	}
	return catalog.NewSchema(variant, mcfg), mcfg, nil
}

// catalogStores returns the local store and, when configured, the remote mirror.
func catalogStores(ctx context.Context, cfg *config.Config) (*blob.LocalStore, []blob.Store, error) {
	local := blob.NewLocalStore("")
	if !cfg.Output.Remote.Enabled {
		return local, nil, nil
	}
	remote, err := blob.DialMinio(cfg.Output.Remote)
	if err != nil {
		return nil, nil, err
	}
	if err := remote.EnsureBucket(ctx); err != nil {
		return nil, nil, err
	}
	return local, []blob.Store{remote}, nil
}

// filterFlags are the load-time row filter switches shared by several commands.
type filterFlags struct {
	noStatus bool
	noFlux   bool
	noFlags  bool
	dataset  int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noStatus, "no-status", false, "Keep rows whose fit failed")
	cmd.Flags().BoolVar(&f.noFlux, "no-flux", false, "Keep rows with non-positive flux")
	cmd.Flags().BoolVar(&f.noFlags, "no-flags", false, "Keep rows with bad detection flags")
	cmd.Flags().IntVar(&f.dataset, "dataset", 0, "Keep only this dataset")
}

// options combines the configured filters with the command line switches.
func (f *filterFlags) options(cmd *cobra.Command, cfg config.FilterConfig) catalog.FilterOptions {
	opts := catalog.FilterOptions{
		Status: cfg.Status && !f.noStatus,
		Flux:   cfg.Flux && !f.noFlux,
		Flags:  cfg.Flags && !f.noFlags,
	}
	switch {
	case cmd.Flags().Changed("dataset"):
		ds := int32(f.dataset)
		opts.Dataset = &ds
	case cfg.Dataset != nil:
		ds := int32(*cfg.Dataset)
		opts.Dataset = &ds
	}
	return opts
}

// catalogPath returns the positional path argument or the configured output.
func catalogPath(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Output.Path
}

// commandContext returns the command context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

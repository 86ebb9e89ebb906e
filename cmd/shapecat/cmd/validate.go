package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/tablefile"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the dataset store to ensure a build can run.

Checks performed:
  - Configuration syntax and required fields
  - Measurement grid and catalog compression
  - Dataset store connectivity
  - Store table existence
  - Exposure presence for each requested dataset
  - Remote bucket access (when enabled)

Example:
  shapecat validate --config shapecat.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting validation checks...")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(out, "Config file: %s\n", GetConfigFile())
	fmt.Fprintf(out, "Store: %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "Datasets requested: %d\n\n", len(cfg.Datasets))

	hasErrors := false

	schema, mcfg, err := schemaFor(cfg)
	if err == nil {
		err = mcfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(out, "❌ Measurement: %v\n", err)
		hasErrors = true
	} else {
		fmt.Fprintf(out, "✅ Measurement: %s variant, %d components, %d grid points\n",
			schema.Variant, schema.NCoeff, mcfg.GridSize())
	}

	if _, err := tablefile.ParseCompression(cfg.Output.Compression); err != nil {
		fmt.Fprintf(out, "❌ Output: %v\n", err)
		hasErrors = true
	} else {
		fmt.Fprintf(out, "✅ Output: %s (%s)\n", cfg.Output.Path, cfg.Output.Compression)
	}

	ctx := commandContext(cmd)
	store, dbManager, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(out, "❌ Store: %v\n", err)
		return fmt.Errorf("validation failed")
	}
	defer dbManager.Close()
	fmt.Fprintf(out, "✅ Store: connected\n")

	checker, err := datastore.NewPreflightChecker(store, log)
	if err != nil {
		return err
	}
	report, err := checker.RunAllChecks(ctx, cfg.Datasets)
	if err != nil {
		fmt.Fprintf(out, "❌ Preflight checks failed: %v\n", err)
		hasErrors = true
	} else {
		fmt.Fprintf(out, "✅ Preflight: %d present", len(report.Present))
		if len(report.Missing) > 0 {
			fmt.Fprintf(out, ", missing (will be skipped): %v", report.Missing)
		}
		fmt.Fprintln(out)
	}

	if cfg.Output.Remote.Enabled {
		if _, _, err := catalogStores(ctx, cfg); err != nil {
			fmt.Fprintf(out, "❌ Remote: %v\n", err)
			hasErrors = true
		} else {
			fmt.Fprintf(out, "✅ Remote: bucket %s reachable\n", cfg.Output.Remote.Bucket)
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	fmt.Fprintln(out, "\n=== Validation Complete ===")
	fmt.Fprintln(out, "✅ Configuration validated successfully")
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/catalog"
)

var dryrunDatasets []int

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Estimate a build without fitting anything",
	Long: `Dry-run reports what a build would do without measuring any source or
writing the catalog.

The dry-run shows:
  - Requested datasets that are present and missing
  - Number of sources and objective evaluations
  - Row layout and estimated uncompressed size

Example:
  shapecat dry-run --config shapecat.yaml --datasets 0,1,2`,
	RunE: runDryrun,
}

func init() {
	dryrunCmd.Flags().IntSliceVarP(&dryrunDatasets, "datasets", "d", nil,
		"Dataset ids to estimate (overrides the config file)")

	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, dryrunDatasets)
	if err != nil {
		return err
	}
	defer log.Sync()

	schema, mcfg, err := schemaFor(cfg)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	store, dbManager, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	// Create estimator
	estimator := catalog.NewEstimator(store, schema, mcfg.GridSize(), log)

	// Run estimation
	result, err := estimator.Estimate(ctx, cfg.Datasets)
	if err != nil {
		return fmt.Errorf("estimation failed: %w", err)
	}

	// Display execution plan
	estimator.DisplayExecutionPlan(cmd.OutOrStdout(), result)
	return nil
}

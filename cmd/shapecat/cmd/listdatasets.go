package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listDatasetsCmd = &cobra.Command{
	Use:   "list-datasets",
	Short: "List the datasets held by the dataset store",
	Long: `List-datasets displays every dataset in the configured store along with
its exposure size, PSF width and number of detected sources.

Example:
  shapecat list-datasets --config shapecat.yaml`,
	RunE: runListDatasets,
}

func init() {
	rootCmd.AddCommand(listDatasetsCmd)
}

func runListDatasets(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := commandContext(cmd)
	store, dbManager, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	summaries, err := store.Summaries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}

	if len(summaries) == 0 {
		cmd.Printf("No datasets in %s store\n", cfg.Store.Driver)
		return nil
	}

	cmd.Printf("Datasets in %s store:\n\n", cfg.Store.Driver)

	sources := 0
	for i, s := range summaries {
		cmd.Printf("%d. dataset %d\n", i+1, s.ID)
		if s.HasExposure {
			cmd.Printf("   Exposure:  %dx%d\n", s.Width, s.Height)
		} else {
			cmd.Printf("   Exposure:  (missing)\n")
		}
		cmd.Printf("   PSF sigma: %.3f\n", s.PSFSigma)
		cmd.Printf("   Sources:   %d\n", s.Sources)
		sources += s.Sources

		// Add spacing between datasets
		if i < len(summaries)-1 {
			cmd.Println()
		}
	}

	cmd.Printf("\nTotal: %d dataset(s), %d source(s)\n", len(summaries), sources)
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/plot"
	"github.com/dbsmedya/shapecat/internal/types"
)

var (
	viewDataset int
	viewID      int64
	viewIndex   int
	viewASCII   bool
	viewWidth   int
)

var viewCmd = &cobra.Command{
	Use:   "view [catalog]",
	Short: "Show the data, model and residual of one measured source",
	Long: `View looks up one row of a catalog, re-reads its exposure from the dataset
store and draws the data, the fitted model and the residual around the
source, followed by a radial profile.

The source is selected by its detection id, or by its position in the
dataset (extended catalogs only).

Example:
  shapecat view --dataset 3 --id 17
  shapecat view catalog.sct --dataset 3 --index 0 --ascii`,
	Args: cobra.MaximumNArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().IntVar(&viewDataset, "dataset", 0, "Dataset id (required)")
	viewCmd.MarkFlagRequired("dataset")
	viewCmd.Flags().Int64Var(&viewID, "id", 0, "Source id")
	viewCmd.Flags().IntVar(&viewIndex, "index", -1, "Source position within the dataset")
	viewCmd.Flags().BoolVar(&viewASCII, "ascii", false, "Use ASCII glyphs only")
	viewCmd.Flags().IntVar(&viewWidth, "width", 72, "Output width in characters")

	rootCmd.AddCommand(viewCmd)
}

// findRow resolves the --id or --index selection.
func findRow(cmd *cobra.Command, t *catalog.Table, dataset int32) (int, error) {
	byID := cmd.Flags().Changed("id")
	byIndex := cmd.Flags().Changed("index")
	switch {
	case byID && byIndex:
		return 0, fmt.Errorf("--id and --index are mutually exclusive")
	case byIndex:
		return t.FindIndex(dataset, int32(viewIndex))
	case byID:
		i, ok := t.Find(dataset, viewID)
		if !ok {
			return 0, fmt.Errorf("source %d not found in dataset %d", viewID, dataset)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("one of --id or --index is required")
	}
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := commandContext(cmd)
	dataset := int32(viewDataset)
	f, err := loadCatalog(ctx, cfg, args, false, catalog.FilterOptions{Dataset: &dataset})
	if err != nil {
		return err
	}
	i, err := findRow(cmd, f.Table, dataset)
	if err != nil {
		return err
	}
	rec := f.Table.Rows[i]

	mcfg := measure.FromConfig(cfg.Measurement)
	if mcfg.NCoeff() != f.Table.Schema.NCoeff {
		return fmt.Errorf("%w: catalog has %d components, configuration has %d",
			catalog.ErrSchemaMismatch, f.Table.Schema.NCoeff, mcfg.NCoeff())
	}

	store, dbManager, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	exp, err := store.Exposure(ctx, viewDataset)
	if err != nil {
		return fmt.Errorf("failed to read exposure of dataset %d: %w", viewDataset, err)
	}
	psf, err := store.PSF(ctx, viewDataset)
	if err != nil {
		return fmt.Errorf("failed to read psf of dataset %d: %w", viewDataset, err)
	}
	exp.SetPSF(psf)

	sources, err := store.Sources(ctx, viewDataset)
	if err != nil {
		return fmt.Errorf("failed to read sources of dataset %d: %w", viewDataset, err)
	}
	var src *types.Source
	for k := range sources {
		if sources[k].ID == rec.ID {
			src = &sources[k]
			break
		}
	}
	if src == nil {
		return fmt.Errorf("source %d of dataset %d is no longer in the store", rec.ID, viewDataset)
	}

	fitter, err := measure.NewFitter(mcfg, exp)
	if err != nil {
		return err
	}
	viewer, err := plot.NewViewer(fitter, &plot.Config{Width: viewWidth, Height: 24, UseAscii: viewASCII, Color: !viewASCII})
	if err != nil {
		return err
	}
	log.Debugw("Rendering source", "dataset", viewDataset, "id", rec.ID, "row", i)
	return viewer.Render(cmd.OutOrStdout(), rec, *src)
}

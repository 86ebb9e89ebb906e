package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/plot"
)

var (
	plotFilters        filterFlags
	plotColorComponent int
	plotWidth          int
	plotHeight         int
	plotASCII          bool
	plotNoColor        bool
)

var plotCmd = &cobra.Command{
	Use:   "plot [catalog]",
	Short: "Plot psf_mag - mag against mag for a catalog",
	Long: `Plot draws a terminal scatter plot of the difference between the PSF and
model magnitudes against the model magnitude. Stars sit near zero; resolved
galaxies rise above it.

Points can be colored by the flux fraction of one mixture component.

Example:
  shapecat plot catalog.sct --color-component 0
  shapecat plot --dataset 2 --ascii --width 100 --height 30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlot,
}

func init() {
	plotFilters.register(plotCmd)
	plotCmd.Flags().IntVar(&plotColorComponent, "color-component", -1,
		"Color points by the flux fraction of this component (-1 disables)")
	plotCmd.Flags().IntVar(&plotWidth, "width", 72, "Plot width in characters")
	plotCmd.Flags().IntVar(&plotHeight, "height", 24, "Plot height in lines")
	plotCmd.Flags().BoolVar(&plotASCII, "ascii", false, "Use ASCII glyphs only")
	plotCmd.Flags().BoolVar(&plotNoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	f, err := loadCatalog(commandContext(cmd), cfg, args, false, plotFilters.options(cmd, cfg.Filters))
	if err != nil {
		return err
	}

	fig, err := plot.MagDiff(f.Table, plot.MagDiffOptions{
		ColorComponent: plotColorComponent,
		Config: &plot.Config{
			Width:    plotWidth,
			Height:   plotHeight,
			UseAscii: plotASCII,
			Color:    !plotNoColor,
		},
	})
	if err != nil {
		return err
	}
	if fig.Skipped > 0 {
		log.Infow("Points without a finite magnitude were not drawn", "skipped", fig.Skipped)
	}

	fmt.Fprint(cmd.OutOrStdout(), fig.String())
	return nil
}

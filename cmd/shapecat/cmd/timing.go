package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/measure"
	"github.com/dbsmedya/shapecat/internal/synth"
)

var (
	timingSizes  []int
	timingRepeat []int
)

var timingCmd = &cobra.Command{
	Use:   "timing",
	Short: "Time fitter construction and point-source measurement",
	Long: `Timing measures how long the fitter takes to set up and to measure
point sources in synthetic star fields of increasing size. No store or
catalog is touched.

For each field size and repeat count it prints the fitter construction
time, the number of pixels, and the time of the repeated measurements.

Example:
  shapecat timing --sizes 30,50,200 --repeat 5,20`,
	RunE: runTiming,
}

func init() {
	timingCmd.Flags().IntSliceVar(&timingSizes, "sizes", []int{30, 50, 200},
		"Square field sizes in pixels")
	timingCmd.Flags().IntSliceVar(&timingRepeat, "repeat", []int{5, 10, 15, 20},
		"Number of times every source is measured")

	rootCmd.AddCommand(timingCmd)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func runTiming(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	mcfg := measure.FromConfig(cfg.Measurement)
	out := cmd.OutOrStdout()

	for _, size := range timingSizes {
		opts := synth.DefaultOptions()
		opts.Width, opts.Height = size, size
		opts.Galaxies = 0
		opts.Stars = max(1, size*size/900)
		opts.BadPixels = 0
		d, err := synth.Generate(size, opts)
		if err != nil {
			return err
		}
		d.Exposure.SetPSF(&d.PSF)

		for _, repeat := range timingRepeat {
			t0 := time.Now()
			fitter, err := measure.NewFitter(mcfg, d.Exposure)
			if err != nil {
				return err
			}
			construct := time.Since(t0)

			failed := 0
			t0 = time.Now()
			for r := 0; r < repeat; r++ {
				for _, src := range d.Sources {
					if res := fitter.Measure(src); res.Failed() && r == 0 {
						failed++
					}
				}
			}
			elapsed := time.Since(t0)
			per := elapsed / time.Duration(max(1, repeat*len(d.Sources)))

			fmt.Fprintf(out, "Construction of fitter: %0.3f ms\n", ms(construct))
			fmt.Fprintf(out, "\tUsing %d pixels, %d sources, %d grid points\n",
				size*size, len(d.Sources), mcfg.GridSize())
			fmt.Fprintf(out, "%d passes of measurement: %0.3f ms (%0.3f ms per source, %d failed)\n",
				repeat, ms(elapsed), ms(per), failed)
			fmt.Fprintln(out)

			log.Debugw("Timing pass",
				"size", size,
				"repeat", repeat,
				"per_source_ms", math.Round(ms(per)*1000)/1000,
			)
		}
	}
	return nil
}

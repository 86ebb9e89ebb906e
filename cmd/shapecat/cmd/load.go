package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/blob"
	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/config"
	"github.com/dbsmedya/shapecat/internal/plot"
	"github.com/dbsmedya/shapecat/internal/tablefile"
)

var (
	loadFilters filterFlags
	loadRows    int
	loadColumns []string
	loadStrict  bool
)

var loadCmd = &cobra.Command{
	Use:     "load [catalog]",
	Aliases: []string{"inspect"},
	Short:   "Load a catalog file and print a summary of its rows",
	Long: `Load reads a catalog file, applies the row filters and prints a summary
followed by the first rows.

By default rows are kept only when the fit succeeded, the flux is positive
and no bad detection flag is set. Each filter can be switched off.

Example:
  shapecat load catalog.sct --rows 20
  shapecat load --no-flags --dataset 3 --columns dataset,id,flux,coeff[0]`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	loadFilters.register(loadCmd)
	loadCmd.Flags().IntVarP(&loadRows, "rows", "n", 10,
		"Number of rows to print (0 prints all)")
	loadCmd.Flags().StringSliceVar(&loadColumns, "columns", nil,
		"Columns to print, e.g. flux,coeff[0]")
	loadCmd.Flags().BoolVar(&loadStrict, "strict", false,
		"Fail unless the file layout matches the configured measurement")

	rootCmd.AddCommand(loadCmd)
}

// loadCatalog reads the catalog named by args or the configuration and applies filters.
func loadCatalog(ctx context.Context, cfg *config.Config, args []string, strict bool, opts catalog.FilterOptions) (*tablefile.File, error) {
	var expect *catalog.Schema
	if strict {
		schema, _, err := schemaFor(cfg)
		if err != nil {
			return nil, err
		}
		expect = &schema
	}
	path := catalogPath(cfg, args)
	f, err := tablefile.Load(ctx, blob.NewLocalStore(""), path, expect, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return f, nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := loadFilters.options(cmd, cfg.Filters)
	f, err := loadCatalog(commandContext(cmd), cfg, args, loadStrict, opts)
	if err != nil {
		return err
	}
	log.Debugw("Catalog loaded",
		"path", catalogPath(cfg, args),
		"stored_rows", f.Header.Rows,
		"kept_rows", f.Table.Len(),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Catalog: %s ===\n", catalogPath(cfg, args))
	fmt.Fprintf(out, "Build ID: %s\n", f.Header.BuildID)
	fmt.Fprintf(out, "Stored rows: %d\n", f.Header.Rows)
	fmt.Fprintf(out, "Compression: %s\n", f.Header.Compression)
	fmt.Fprintf(out, "Digest: %s\n\n", f.Digest)

	plot.Summary(out, f.Table)
	fmt.Fprintln(out)
	return plot.Rows(out, f.Table, loadColumns, loadRows)
}

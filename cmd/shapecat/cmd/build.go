package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/shapecat/internal/catalog"
	"github.com/dbsmedya/shapecat/internal/database"
	"github.com/dbsmedya/shapecat/internal/datastore"
	"github.com/dbsmedya/shapecat/internal/lock"
	"github.com/dbsmedya/shapecat/internal/tablefile"
	"github.com/dbsmedya/shapecat/internal/verifier"
)

var (
	buildDatasets []int
	buildForce    bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Measure every source of the requested datasets and write the catalog",
	Long: `Build fits every detected source of the requested datasets and writes
one row per source to the catalog file.

The build process follows these steps:
  1. Check the dataset store and report requested datasets that are missing
  2. Fit each source with the configured Gaussian mixture and grid
  3. Write the catalog file (and the remote copy, if enabled)
  4. Read the file back and verify it (count or SHA256)

Failed fits are recorded with their status flags, never dropped.

Example:
  shapecat build --config shapecat.yaml --datasets 0,1,2`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().IntSliceVarP(&buildDatasets, "datasets", "d", nil,
		"Dataset ids to build (overrides the config file)")

	buildCmd.Flags().BoolVar(&buildForce, "force", false,
		"Force execution even if the build lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, buildDatasets)
	if err != nil {
		return err
	}
	defer log.Sync()

	schema, mcfg, err := schemaFor(cfg)
	if err != nil {
		return err
	}
	comp, err := tablefile.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return err
	}

	log.Infow("Starting build",
		"config", GetConfigFile(),
		"datasets", cfg.Datasets,
		"variant", schema.Variant.String(),
		"output", cfg.Output.Path,
	)

	// Setup context with signal handling
	ctx := database.SetupSignalHandler()

	store, dbManager, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbManager.Close()

	checker, err := datastore.NewPreflightChecker(store, log)
	if err != nil {
		return err
	}
	report, err := checker.RunAllChecks(ctx, cfg.Datasets)
	if err != nil {
		return fmt.Errorf("preflight checks failed: %w", err)
	}
	if len(report.Missing) > 0 {
		log.Warnw("Requested datasets not found, skipping", "datasets", report.Missing)
	}

	// Advisory locks are MySQL-only.
	if dbManager.Driver() == database.DriverMySQL {
		if !buildForce {
			buildLock := lock.NewBuildLock(dbManager.Store, cfg.Output.Path)
			if err := buildLock.AcquireOrFail(ctx); err != nil {
				if errors.Is(err, lock.ErrLockTimeout) {
					return fmt.Errorf("a build of %q is already running on another instance (use --force to override)", cfg.Output.Path)
				}
				return fmt.Errorf("failed to acquire build lock: %w", err)
			}
			defer buildLock.ReleaseLock(context.Background())
			log.Infow("Acquired advisory lock for build", "output", cfg.Output.Path)
		} else {
			log.Warnw("Skipping advisory lock acquisition (--force flag used)", "output", cfg.Output.Path)
		}
	}

	builder, err := catalog.NewBuilder(store, schema, catalog.FitterFactory(mcfg), log)
	if err != nil {
		return fmt.Errorf("failed to create builder: %w", err)
	}

	result, err := builder.Build(ctx, cfg.Datasets)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Build cancelled by user")
			return nil
		}
		return fmt.Errorf("build failed: %w", err)
	}

	local, mirrors, err := catalogStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open remote catalog store: %w", err)
	}
	file, err := tablefile.Save(ctx, local, cfg.Output.Path, result.Table, comp, mirrors...)
	if err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	log.Infow("Catalog written",
		"path", cfg.Output.Path,
		"rows", file.Header.Rows,
		"build_id", file.Header.BuildID.String(),
		"stored_bytes", file.Header.StoredSize,
	)

	method := verifier.VerificationMethod(cfg.Verification.Method)
	if cfg.Verification.SkipVerification {
		method = verifier.MethodSkip
	}
	v, err := verifier.NewVerifier(local, cfg.Output.Path, method, log)
	if err != nil {
		return err
	}
	stats, err := v.Verify(ctx, result.Table)
	if err != nil {
		return fmt.Errorf("catalog verification failed: %w", err)
	}

	// Display results
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Build Complete ===\n")
	fmt.Fprintf(out, "Output: %s\n", cfg.Output.Path)
	fmt.Fprintf(out, "Build ID: %s\n", file.Header.BuildID)
	fmt.Fprintf(out, "Duration: %s\n", result.Duration)
	fmt.Fprintf(out, "Datasets Processed: %v\n", result.Processed)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "Datasets Skipped: %v\n", result.Skipped)
	}
	fmt.Fprintf(out, "Sources Measured: %d\n", result.Sources)
	fmt.Fprintf(out, "Failed Fits: %d\n", result.Failed)
	fmt.Fprintf(out, "Compression: %s (%d -> %d bytes)\n",
		file.Header.Compression, file.Header.PayloadSize, file.Header.StoredSize)
	if cfg.Output.Remote.Enabled {
		fmt.Fprintf(out, "Remote Copy: s3://%s/%s\n", cfg.Output.Remote.Bucket, cfg.Output.Remote.Prefix)
	}
	if stats.Method == verifier.MethodSkip {
		fmt.Fprintf(out, "Verification: skipped\n")
	} else {
		fmt.Fprintf(out, "Verification: %s, %d datasets, %d rows\n",
			stats.Method, stats.DatasetsPassed, stats.TotalRows)
	}
	fmt.Fprintln(out, color.Green.Sprint("✅ Catalog built successfully"))
	return nil
}

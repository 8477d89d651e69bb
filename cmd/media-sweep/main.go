package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
)

var (
	dryRun    bool
	useJSON   bool
	verbose   bool
	retention time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "media-sweep",
	Short: "Delete images that were never attached to an owner",
	Long: `Run the orphan sweep once and exit.

Images without an owner whose record is older than the retention window are
removed from object storage and then from the metadata store, in one
transaction. The server runs the same sweep on its schedule.

Configuration is read from the environment (and a .env file in the current
directory): DATABASE_URL (postgres only), MEDIA_DB_SCHEMA, STORAGE_TYPE, S3_*, FS_*.

Examples:
  media-sweep                 # delete orphans older than one week
  media-sweep --dry-run -v    # list what would be deleted
  media-sweep --json          # machine-readable result`,
	SilenceUsage: true,
	RunE:         runSweep,
}

func init() {
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting them")
	rootCmd.Flags().BoolVar(&useJSON, "json", false, "print the result as JSON")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and candidate listing")
	rootCmd.Flags().DurationVar(&retention, "retention", reconcile.DefaultRetention, "minimum age of unattached images to delete")
}

func main() {
	// Configuration may come from a .env file; real environment wins
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSweep(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := requirePersistentDatabase(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	res, err := cfg.Build(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to build media service: %w", err)
	}
	defer res.Close()

	reconciler := reconcile.New(res.Service,
		reconcile.WithLogger(logger),
		reconcile.WithRetention(retention),
	)

	result, err := reconciler.Sweep(ctx, reconcile.SweepOptions{DryRun: dryRun})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(out, result.Message())
	if verbose && len(result.Candidates) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tKEY")
		for _, m := range result.Candidates {
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.StorageKey)
		}
		return w.Flush()
	}
	return nil
}

// requirePersistentDatabase rejects the in-memory repository: a fresh
// process would sweep an empty store and report nothing to do.
func requirePersistentDatabase(cfg *config.ServerConfig) error {
	if cfg.DatabaseType() == "memory" {
		return errors.New("media-sweep needs a persistent database: set DATABASE_URL to a postgres:// URL")
	}
	return nil
}

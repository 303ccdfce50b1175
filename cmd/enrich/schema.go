package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/models"
	"github.com/bdougie/contributor-enrichment/internal/observability"
	"github.com/bdougie/contributor-enrichment/internal/repository"
)

const defaultRetentionDays = 365

var errInvalidRetention = errors.New("--days must be positive")

func migrateCmd() *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		Long:  `migrate applies the embedded schema migrations. --version -1 migrates to the latest version and also applies the job queue schema; 0 rolls everything back.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat))

			if err := repository.Migrate(cfg.DatabaseURL, version); err != nil {
				return err
			}
			if version >= 0 {
				return nil
			}

			db, err := app.OpenDatabase(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			return app.MigrateQueue(cmd.Context(), db)
		},
	}

	cmd.Flags().IntVar(&version, "version", -1, "target schema version (-1 for latest)")

	return cmd
}

// retentionCutoff is the first snapshot date kept when retaining days of history.
func retentionCutoff(now time.Time, days int) time.Time {
	return models.SnapshotDate(now).AddDate(0, 0, -days)
}

func pruneCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete contributor snapshots older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return errInvalidRetention
			}

			env, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer env.Close()

			cutoff := retentionCutoff(time.Now(), days)
			removed, err := repository.NewSnapshotsRepository(env.db).DeleteSnapshotsBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "removed %d snapshots before %s\n", removed, cutoff.Format(time.DateOnly))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultRetentionDays, "days of snapshot history to keep")

	return cmd
}

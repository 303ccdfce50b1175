// Command enrich runs contributor enrichment on demand, enqueues enrichment jobs and
// manages the schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "enrich",
		Short:         "Contributor enrichment pipeline",
		Long:          `enrich clusters workspace contributions into topics and derives personas, quality scores and trends for contributors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(contributorCmd())
	cmd.AddCommand(workspaceCmd())
	cmd.AddCommand(topicsCmd())
	cmd.AddCommand(allCmd())
	cmd.AddCommand(enqueueCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(pruneCmd())

	return cmd
}

// environment is the configuration and connections shared by every subcommand.
type environment struct {
	cfg *config.Config
	db  *pgxpool.Pool
	obs *app.Observability
}

// connect loads configuration, installs the logger and opens the database.
func connect(ctx context.Context, withObservability bool) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	env := &environment{cfg: cfg, obs: &app.Observability{}}
	if withObservability {
		env.obs, err = app.SetupObservability(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	env.db, err = app.OpenDatabase(ctx, cfg)
	if err != nil {
		_ = env.obs.Shutdown(ctx)
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return env, nil
}

func (e *environment) Close() {
	e.db.Close()

	if err := e.obs.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown observability", "error", err)
	}
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, raw, err)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

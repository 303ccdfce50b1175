// Command worker runs the enrichment job queue, the periodic all-workspaces schedule and
// the operator HTTP API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/observability"
	"github.com/bdougie/contributor-enrichment/internal/repository"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	slog.SetDefault(observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := repository.Migrate(cfg.DatabaseURL, -1); err != nil {
		slog.Error("Failed to apply migrations", "error", err)
		return 1
	}

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	if err := app.MigrateQueue(ctx, db); err != nil {
		slog.Error("Failed to apply queue migrations", "error", err)
		return 1
	}

	worker, err := NewWorker(ctx, cfg, db)
	if err != nil {
		slog.Error("Failed to initialize worker", "error", err)
		return 1
	}

	runErr := worker.Run(ctx)
	if runErr != nil {
		slog.Error("Worker failed", "error", runErr)
	}

	slog.Info("Shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	if err := worker.Shutdown(shutdownCtx); err != nil {
		slog.Error("Worker forced to shutdown", "error", err)
		return 1
	}

	slog.Info("Worker exited")

	if runErr != nil {
		return 1
	}

	return 0
}

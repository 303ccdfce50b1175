package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bdougie/contributor-enrichment/internal/api/handlers"
	"github.com/bdougie/contributor-enrichment/internal/api/middleware"
	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/repository"
	"github.com/bdougie/contributor-enrichment/internal/workers"
)

// Worker holds the River client, HTTP server and providers of the worker process.
type Worker struct {
	cfg    *config.Config
	server *http.Server
	river  *river.Client[pgx.Tx]
	obs    *app.Observability
}

// NewWorker builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewWorker(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*Worker, error) {
	obs, err := app.SetupObservability(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := app.NewEnrichmentService(ctx, cfg, db, obs)
	if err != nil {
		shutdownAfterError(obs)
		return nil, fmt.Errorf("create enrichment service: %w", err)
	}

	riverClient, err := app.NewRiverClient(db, app.RiverConfig(cfg, svc, true))
	if err != nil {
		shutdownAfterError(obs)
		return nil, err
	}

	enqueuer := workers.NewEnqueuer(riverClient, cfg.EnrichmentMaxAttempts, obs.Metrics)
	enrichment := handlers.NewEnrichmentHandler(repository.NewSnapshotsRepository(db), enqueuer)
	health := handlers.NewHealthHandler(db)

	slog.Info("enrichment worker configured",
		"queue", workers.QueueName,
		"max_workers", cfg.WorkerMaxConcurrent,
		"max_attempts", cfg.EnrichmentMaxAttempts,
		"schedule_interval", cfg.EnrichmentScheduleInterval,
	)

	return &Worker{
		cfg:    cfg,
		server: newHTTPServer(cfg, obs, health, enrichment),
		river:  riverClient,
		obs:    obs,
	}, nil
}

func shutdownAfterError(obs *app.Observability) {
	if err := obs.Shutdown(context.Background()); err != nil {
		slog.Error("shutdown observability after setup error", "error", err)
	}
}

// newHTTPServer builds the operator HTTP server.
// Handler chain: RequestID -> otelhttp(Logging(mux)) so access logs get trace_id/span_id from context.
func newHTTPServer(
	cfg *config.Config,
	obs *app.Observability,
	health *handlers.HealthHandler,
	enrichment *handlers.EnrichmentHandler,
) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Check)

	if obs.MetricsHandler != nil {
		mux.Handle("GET /metrics", obs.MetricsHandler)
	}

	enrichment.Register(mux)

	otelOpts := []otelhttp.Option{
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	}
	if obs.MeterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(obs.MeterProvider))
	}

	if obs.TracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(obs.TracerProvider))
	}

	var handler http.Handler = otelhttp.NewHandler(middleware.Logging(mux), "enrichment-worker", otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled or a component
// fails. Caller should then call Shutdown.
func (w *Worker) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := w.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "addr", w.cfg.HTTPAddr)

		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops the server, then River (waiting for in-flight jobs), then the providers.
func (w *Worker) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := w.obs.Shutdown(ctx)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = w.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := w.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = w.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}

// Package app wires configuration, storage, providers and services for the enrichment binaries.
package app

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
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/googleai"
	"github.com/bdougie/contributor-enrichment/internal/observability"
	"github.com/bdougie/contributor-enrichment/internal/openai"
	"github.com/bdougie/contributor-enrichment/internal/repository"
	"github.com/bdougie/contributor-enrichment/internal/service"
	"github.com/bdougie/contributor-enrichment/internal/workers"
	"github.com/bdougie/contributor-enrichment/pkg/database"
)

var errUnsupportedLabelingProvider = errors.New("unsupported labeling provider")

// Observability holds the OpenTelemetry providers and the enrichment instruments.
// Every field is nil when the corresponding exporter is disabled.
type Observability struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	MetricsHandler http.Handler
	Metrics        observability.EnrichmentMetrics
	CacheMetrics   observability.CacheMetrics
}

// SetupObservability creates the meter and tracer providers selected by cfg and installs
// them as the global providers.
func SetupObservability(ctx context.Context, cfg *config.Config) (*Observability, error) {
	obs := &Observability{}

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		mp, handler, err := observability.NewMeterProvider(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create meter provider: %w", err)
		}
		if mp != nil {
			meter := mp.Meter(observability.MeterScope)

			metrics, err := observability.NewEnrichmentMetrics(meter)
			if err != nil {
				_ = observability.ShutdownMeterProvider(ctx, mp)
				return nil, fmt.Errorf("create enrichment metrics: %w", err)
			}
			cacheMetrics, err := observability.NewCacheMetrics(meter)
			if err != nil {
				_ = observability.ShutdownMeterProvider(ctx, mp)
				return nil, fmt.Errorf("create cache metrics: %w", err)
			}

			obs.MeterProvider = mp
			obs.MetricsHandler = handler
			obs.Metrics = metrics
			obs.CacheMetrics = cacheMetrics
			otel.SetMeterProvider(mp)
		}
	}

	if cfg.OtelTracesExporter == "" {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		tp, err := observability.NewTracerProvider(ctx, cfg)
		if err != nil {
			if err2 := observability.ShutdownMeterProvider(ctx, obs.MeterProvider); err2 != nil {
				slog.Error("shutdown meter provider after tracer provider error", "error", err2)
			}
			return nil, fmt.Errorf("create tracer provider: %w", err)
		}
		if tp != nil {
			obs.TracerProvider = tp
			otel.SetTracerProvider(tp)
		}
	}

	return obs, nil
}

// Shutdown flushes and stops both providers. Logs secondary errors, returns the first.
func (o *Observability) Shutdown(ctx context.Context) error {
	var first error

	if err := observability.ShutdownTracerProvider(ctx, o.TracerProvider); err != nil {
		first = err
	}

	if err := observability.ShutdownMeterProvider(ctx, o.MeterProvider); err != nil {
		if first == nil {
			first = err
		} else {
			slog.Error("shutdown meter provider", "error", err)
		}
	}

	return first
}

// OpenDatabase connects to cfg.DatabaseURL with the pgvector types registered.
func OpenDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
}

// NewLabelGenerator returns the generative model selected by LABELING_PROVIDER, wrapped in
// a rate limiter. It returns nil when no provider is configured (heuristic labels only).
func NewLabelGenerator(ctx context.Context, cfg *config.Config) (service.TextGenerator, error) {
	var generator service.TextGenerator

	switch cfg.LabelingProvider {
	case "":
		slog.Info("generative labeling disabled (LABELING_PROVIDER unset)")
		return nil, nil
	case config.LabelingProviderOpenAI:
		generator = openai.NewClient(cfg.LabelingAPIKey, openai.WithModel(cfg.LabelingModel))
	case config.LabelingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.LabelingAPIKey, googleai.WithModel(cfg.LabelingModel))
		if err != nil {
			return nil, fmt.Errorf("create google labeling client: %w", err)
		}
		generator = client
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedLabelingProvider, cfg.LabelingProvider)
	}

	slog.Info("generative labeling enabled",
		"provider", cfg.LabelingProvider,
		"model", cfg.LabelingModel,
		"rate_limit", cfg.LabelingRateLimit,
	)

	return service.NewRateLimitedGenerator(generator, cfg.LabelingRateLimit), nil
}

// trendRepository reads contribution counts and titles from contributions and history from snapshots.
type trendRepository struct {
	*repository.ContributionsRepository
	*repository.SnapshotsRepository
}

var _ service.TrendRepository = trendRepository{}

// EnrichmentOptions maps configuration onto service options.
func EnrichmentOptions(cfg *config.Config) service.EnrichmentOptions {
	opts := service.DefaultEnrichmentOptions()
	opts.Cluster.K = cfg.ClusterK
	opts.Cluster.MaxIterations = cfg.ClusterMaxIterations
	opts.Cluster.ConvergenceThreshold = cfg.ClusterConvergenceThreshold
	opts.Cluster.MinClusterSize = cfg.ClusterMinSize
	opts.BatchSize = cfg.BatchSize
	opts.LookbackDays = cfg.LookbackDays
	return opts
}

// NewEnrichmentService builds the enrichment service over db.
func NewEnrichmentService(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, obs *Observability) (*service.EnrichmentService, error) {
	generator, err := NewLabelGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	contributions := repository.NewContributionsRepository(db)
	snapshots := repository.NewSnapshotsRepository(db)

	return service.NewEnrichmentService(service.EnrichmentDeps{
		Items:        contributions,
		Contributors: repository.NewContributorsRepository(db),
		Workspaces:   repository.NewWorkspacesRepository(db),
		Snapshots:    snapshots,
		Clusterer:    service.NewClusteringService(),
		Labeler:      service.NewTopicLabeler(generator, cfg.LabelingProvider, cfg.LabelingTimeout, obs.Metrics),
		Persona:      service.NewPersonaClassifier(contributions),
		Quality:      service.NewQualityScorer(contributions),
		Trends:       service.NewTrendAnalyzer(trendRepository{contributions, snapshots}),
		Metrics:      obs.Metrics,
		CacheMetrics: obs.CacheMetrics,
	}, EnrichmentOptions(cfg))
}

// RiverConfig builds the River configuration. Workers are registered only when enricher is
// non-nil; an insert-only client passes nil. Periodic scheduling is enabled with periodic.
func RiverConfig(cfg *config.Config, enricher workers.Enricher, periodic bool) *river.Config {
	riverCfg := &river.Config{
		ErrorHandler: &workers.ErrorHandler{},
		MaxAttempts:  cfg.EnrichmentMaxAttempts,
		JobTimeout:   workers.WorkspaceJobTimeout,
	}

	if enricher != nil {
		riverWorkers := river.NewWorkers()
		workers.Register(riverWorkers, enricher)

		riverCfg.Workers = riverWorkers
		riverCfg.Queues = map[string]river.QueueConfig{
			workers.QueueName: {MaxWorkers: cfg.WorkerMaxConcurrent},
		}
	}

	if periodic {
		riverCfg.PeriodicJobs = workers.PeriodicJobs(cfg.EnrichmentScheduleInterval, cfg.EnrichmentMaxAttempts)
	}

	return riverCfg
}

// NewRiverClient creates a River client over db.
func NewRiverClient(db *pgxpool.Pool, riverCfg *river.Config) (*river.Client[pgx.Tx], error) {
	client, err := river.NewClient(riverpgxv5.New(db), riverCfg)
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}
	return client, nil
}

// ShutdownTimeout bounds graceful shutdown of the worker.
const ShutdownTimeout = 30 * time.Second

// MigrateQueue applies River's own schema migrations so the job tables exist.
func MigrateQueue(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create River migrator: %w", err)
	}

	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate River schema: %w", err)
	}

	if len(res.Versions) > 0 {
		slog.InfoContext(ctx, "River schema migrated", "applied", len(res.Versions))
	}

	return nil
}

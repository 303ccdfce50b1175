package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/contributor-enrichment/internal/config"
	"github.com/bdougie/contributor-enrichment/internal/service"
	"github.com/bdougie/contributor-enrichment/internal/workers"
)

func testConfig() *config.Config {
	return &config.Config{
		ClusterK:                    4,
		BatchSize:                   3,
		LookbackDays:                30,
		ClusterMaxIterations:        20,
		ClusterConvergenceThreshold: 0.05,
		ClusterMinSize:              2,
		LabelingRateLimit:           1,
		LabelingTimeout:             time.Second,
		WorkerMaxConcurrent:         2,
		EnrichmentMaxAttempts:       3,
		EnrichmentScheduleInterval:  24 * time.Hour,
	}
}

func TestNewLabelGenerator(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		gen, err := NewLabelGenerator(ctx, testConfig())
		require.NoError(t, err)
		assert.Nil(t, gen)
	})

	t.Run("openai is rate limited", func(t *testing.T) {
		cfg := testConfig()
		cfg.LabelingProvider = config.LabelingProviderOpenAI
		cfg.LabelingAPIKey = "sk-test"

		gen, err := NewLabelGenerator(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &service.RateLimitedGenerator{}, gen)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testConfig()
		cfg.LabelingProvider = "anthropic-local"

		_, err := NewLabelGenerator(ctx, cfg)
		assert.ErrorIs(t, err, errUnsupportedLabelingProvider)
	})
}

func TestEnrichmentOptions(t *testing.T) {
	opts := EnrichmentOptions(testConfig())

	assert.Equal(t, 4, opts.Cluster.K)
	assert.Equal(t, 20, opts.Cluster.MaxIterations)
	assert.InDelta(t, 0.05, opts.Cluster.ConvergenceThreshold, 1e-9)
	assert.Equal(t, 2, opts.Cluster.MinClusterSize)
	assert.Equal(t, 3, opts.BatchSize)
	assert.Equal(t, 30, opts.LookbackDays)
}

func TestRiverConfig(t *testing.T) {
	cfg := testConfig()

	t.Run("insert only", func(t *testing.T) {
		rc := RiverConfig(cfg, nil, false)
		assert.Nil(t, rc.Workers)
		assert.Empty(t, rc.Queues)
		assert.Empty(t, rc.PeriodicJobs)
		assert.Equal(t, 3, rc.MaxAttempts)
	})

	t.Run("worker with schedule", func(t *testing.T) {
		svc, err := service.NewEnrichmentService(service.EnrichmentDeps{}, service.DefaultEnrichmentOptions())
		require.NoError(t, err)

		rc := RiverConfig(cfg, svc, true)
		assert.NotNil(t, rc.Workers)
		assert.Equal(t, 2, rc.Queues[workers.QueueName].MaxWorkers)
		assert.Len(t, rc.PeriodicJobs, 1)
	})
}

func TestObservability_DisabledShutdown(t *testing.T) {
	obs, err := SetupObservability(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Nil(t, obs.Metrics)
	assert.Nil(t, obs.MetricsHandler)
	assert.NoError(t, obs.Shutdown(context.Background()))
}

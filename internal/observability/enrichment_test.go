package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewEnrichmentMetrics_NilMeter(t *testing.T) {
	m, err := NewEnrichmentMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	c, err := NewCacheMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestEnrichmentMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewEnrichmentMetrics(provider.Meter(MeterScope))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordContributorOutcome(ctx, "persona", "success")
	m.RecordContributorOutcome(ctx, "persona", "success")
	m.RecordContributorOutcome(ctx, "bogus-phase", "failure")
	m.RecordWorkspaceRun(ctx, "done", 2*time.Second)
	m.RecordClustering(ctx, 12, true)
	m.RecordLabelingFallback(ctx, "generator_err")

	metrics := collect(t, reader)

	outcomes, ok := metrics[MetricNameContributorOutcomes].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	phases := map[string]int64{}
	for _, dp := range outcomes.DataPoints {
		total += dp.Value
		phase, _ := dp.Attributes.Value(AttrPhase)
		phases[phase.AsString()] += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), phases["persona"])
	assert.Equal(t, int64(1), phases["other"])

	assert.Contains(t, metrics, MetricNameWorkspaceRuns)
	assert.Contains(t, metrics, MetricNameWorkspaceRunDuration)
	assert.Contains(t, metrics, MetricNameClusteringIterations)
	assert.Contains(t, metrics, MetricNameLabelingFallbacks)
}

func TestNormalizeReason(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		allowed map[string]bool
		want    string
	}{
		{"known phase", "quality", AllowedPhases, "quality"},
		{"unknown phase", "labels", AllowedPhases, "other"},
		{"known state", "partially_failed", AllowedRunStates, "partially_failed"},
		{"empty", "", AllowedRunStates, "other"},
		{"known cache", "contributor_by_username", AllowedCacheNames, "contributor_by_username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeReason(tt.input, tt.allowed))
		})
	}
}

func TestCacheMetrics_RecordsLookupResults(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	c, err := NewCacheMetrics(provider.Meter(MeterScope))
	require.NoError(t, err)

	ctx := context.Background()
	c.RecordHit(ctx, "contributor_by_username")
	c.RecordHit(ctx, "contributor_by_username")
	c.RecordMiss(ctx, "contributor_by_username")
	c.RecordMiss(ctx, "unknown_cache")

	metrics := collect(t, reader)
	require.NotContains(t, metrics, "enrichment_cache_hits_total")

	lookups, ok := metrics[MetricNameCacheLookups].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byKey := map[string]int64{}
	for _, dp := range lookups.DataPoints {
		cache, _ := dp.Attributes.Value(AttrCache)
		result, _ := dp.Attributes.Value(AttrResult)
		byKey[cache.AsString()+"/"+result.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{
		"contributor_by_username/hit":  2,
		"contributor_by_username/miss": 1,
		"other/miss":                   1,
	}, byKey)
}

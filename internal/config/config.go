// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Labeling providers.
const (
	LabelingProviderOpenAI = "openai"
	LabelingProviderGoogle = "google"
)

// Trace samplers accepted in OTEL_TRACES_SAMPLER.
const (
	TracesSamplerAlwaysOn                = "always_on"
	TracesSamplerAlwaysOff               = "always_off"
	TracesSamplerTraceIDRatio            = "traceidratio"
	TracesSamplerParentBasedAlwaysOn     = "parentbased_always_on"
	TracesSamplerParentBasedAlwaysOff    = "parentbased_always_off"
	TracesSamplerParentBasedTraceIDRatio = "parentbased_traceidratio"
)

var knownTracesSamplers = map[string]bool{
	TracesSamplerAlwaysOn:                true,
	TracesSamplerAlwaysOff:               true,
	TracesSamplerTraceIDRatio:            true,
	TracesSamplerParentBasedAlwaysOn:     true,
	TracesSamplerParentBasedAlwaysOff:    true,
	TracesSamplerParentBasedTraceIDRatio: true,
}

// Config holds all application configuration.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	LogLevel    string
	LogFormat   string

	// Enrichment defaults. K and batch size are passed into services rather than fixed in code.
	ClusterK                    int
	BatchSize                   int
	LookbackDays                int
	ClusterMaxIterations        int
	ClusterConvergenceThreshold float64
	ClusterMinSize              int

	// Generative topic labeling; empty provider means heuristic labels only.
	LabelingProvider  string
	LabelingAPIKey    string
	LabelingModel     string
	LabelingRateLimit float64
	LabelingTimeout   time.Duration

	// River worker settings.
	WorkerMaxConcurrent        int
	EnrichmentMaxAttempts      int
	EnrichmentScheduleInterval time.Duration

	// OpenTelemetry exporters: "prometheus" or "otlp" for metrics, "otlp" or "stdout" for traces.
	OtelMetricsExporter string
	OtelTracesExporter  string

	// Trace sampling. The ratio only applies to the traceidratio samplers.
	OtelTracesSampler      string
	OtelTracesSamplerRatio float64
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// DATABASE_URL is required; every numeric setting must be positive.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required but not set")
	}

	cfg := &Config{
		DatabaseURL: databaseURL,
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		ClusterK:                    getEnvAsInt("ENRICHMENT_CLUSTER_K", 7),
		BatchSize:                   getEnvAsInt("ENRICHMENT_BATCH_SIZE", 5),
		LookbackDays:                getEnvAsInt("ENRICHMENT_LOOKBACK_DAYS", 90),
		ClusterMaxIterations:        getEnvAsInt("CLUSTER_MAX_ITERATIONS", 50),
		ClusterConvergenceThreshold: getEnvAsFloat("CLUSTER_CONVERGENCE_THRESHOLD", 0.01),
		ClusterMinSize:              getEnvAsInt("CLUSTER_MIN_SIZE", 3),

		LabelingProvider:  os.Getenv("LABELING_PROVIDER"),
		LabelingAPIKey:    os.Getenv("LABELING_API_KEY"),
		LabelingModel:     os.Getenv("LABELING_MODEL"),
		LabelingRateLimit: getEnvAsFloat("LABELING_RATE_LIMIT", 2),
		LabelingTimeout:   getEnvAsDuration("LABELING_TIMEOUT", 20*time.Second),

		WorkerMaxConcurrent:        getEnvAsInt("WORKER_MAX_CONCURRENT", 2),
		EnrichmentMaxAttempts:      getEnvAsInt("ENRICHMENT_MAX_ATTEMPTS", 3),
		EnrichmentScheduleInterval: getEnvAsDuration("ENRICHMENT_SCHEDULE_INTERVAL", 24*time.Hour),

		OtelMetricsExporter: os.Getenv("OTEL_METRICS_EXPORTER"),
		OtelTracesExporter:  os.Getenv("OTEL_TRACES_EXPORTER"),

		OtelTracesSampler:      getEnv("OTEL_TRACES_SAMPLER", TracesSamplerParentBasedAlwaysOn),
		OtelTracesSamplerRatio: getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	positives := []struct {
		name  string
		value int
	}{
		{"ENRICHMENT_CLUSTER_K", c.ClusterK},
		{"ENRICHMENT_BATCH_SIZE", c.BatchSize},
		{"ENRICHMENT_LOOKBACK_DAYS", c.LookbackDays},
		{"CLUSTER_MAX_ITERATIONS", c.ClusterMaxIterations},
		{"CLUSTER_MIN_SIZE", c.ClusterMinSize},
		{"WORKER_MAX_CONCURRENT", c.WorkerMaxConcurrent},
		{"ENRICHMENT_MAX_ATTEMPTS", c.EnrichmentMaxAttempts},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be a positive integer", p.name)
		}
	}

	if c.ClusterConvergenceThreshold <= 0 || c.ClusterConvergenceThreshold >= 1 {
		return errors.New("CLUSTER_CONVERGENCE_THRESHOLD must be between 0 and 1")
	}

	if !knownTracesSamplers[c.OtelTracesSampler] {
		return fmt.Errorf("OTEL_TRACES_SAMPLER %q is not supported", c.OtelTracesSampler)
	}

	if c.OtelTracesSamplerRatio < 0 || c.OtelTracesSamplerRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1")
	}

	if c.EnrichmentScheduleInterval <= 0 {
		return errors.New("ENRICHMENT_SCHEDULE_INTERVAL must be a positive duration")
	}

	switch c.LabelingProvider {
	case "":
	case LabelingProviderOpenAI, LabelingProviderGoogle:
		if c.LabelingAPIKey == "" {
			return errors.New("LABELING_API_KEY is required when LABELING_PROVIDER is set")
		}
		if c.LabelingRateLimit <= 0 {
			return errors.New("LABELING_RATE_LIMIT must be positive")
		}
	default:
		return fmt.Errorf("LABELING_PROVIDER must be %q, %q or empty", LabelingProviderOpenAI, LabelingProviderGoogle)
	}

	return nil
}

package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/bdougie/contributor-enrichment/internal/config"
)

// TraceSampler builds the sampler named by cfg.OtelTracesSampler. Load has already rejected
// unknown names and ratios outside [0,1]; anything else falls back to parentbased_always_on.
func TraceSampler(cfg *config.Config) sdktrace.Sampler {
	if cfg == nil {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}

	switch cfg.OtelTracesSampler {
	case config.TracesSamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case config.TracesSamplerAlwaysOff:
		return sdktrace.NeverSample()
	case config.TracesSamplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(cfg.OtelTracesSamplerRatio)
	case config.TracesSamplerParentBasedTraceIDRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OtelTracesSamplerRatio))
	case config.TracesSamplerParentBasedAlwaysOff:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

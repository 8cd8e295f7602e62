package observability

import (
	"os"
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// env names for OTEL trace sampling (standard env vars, not in config to keep config minimal).
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// defaultTraceIDRatio is used when the sampler is ratio-based but the arg is missing or invalid.
const defaultTraceIDRatio = 1.0

// samplerFromEnv builds the Sampler from OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG.
func samplerFromEnv() sdktrace.Sampler {
	return newSampler(os.Getenv(envTracesSampler), os.Getenv(envTracesSamplerArg))
}

// newSampler returns a Sampler for the given sampler name and argument.
// Supported names: always_on, always_off, traceidratio, parentbased_traceidratio,
// parentbased_always_on, parentbased_always_off. Empty or unknown => parentbased_always_on.
func newSampler(name, arg string) sdktrace.Sampler {
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg))
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg)))
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		// Empty or unknown: default to parentbased_always_on (same as SDK default).
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func parseTraceIDRatio(s string) float64 {
	if s == "" {
		return defaultTraceIDRatio
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultTraceIDRatio
	}

	return f
}

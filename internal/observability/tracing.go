// Package observability wires OpenTelemetry tracing for backend calls.
//
// Tracing is opt-in (tracing.enabled in the config) and exports over
// OTLP/HTTP to a local collector endpoint, so no credentials ever pass
// through the client. With tracing disabled nothing is registered and the
// api package's spans fall back to the no-op global provider.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tutorllm/tutorllm/internal/log"
)

// DefaultEndpoint is the default OTLP/HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// serviceName tags exported spans in the tracing backend.
const serviceName = "tutorllm"

// Config for the trace exporter.
type Config struct {
	// Endpoint is the OTLP/HTTP collector address (default: localhost:4318).
	Endpoint string
	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string
	// Logger is required.
	Logger log.Logger
}

// Setup installs a tracer provider exporting to the configured collector
// and registers it globally so the api client's tracer picks it up.
//
// Returns a shutdown function that flushes pending spans. Exporter
// construction failures degrade to disabled tracing rather than aborting
// startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		cfg.Logger.Warn("creating trace exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	attrs := []sdkresource.Option{
		sdkresource.WithAttributes(semconv.ServiceName(serviceName)),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, sdkresource.WithAttributes(
			semconv.DeploymentEnvironment(cfg.Environment),
		))
	}
	res, err := sdkresource.New(ctx, attrs...)
	if err != nil {
		cfg.Logger.Warn("building trace resource failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	cfg.Logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", serviceName,
		"environment", cfg.Environment,
	)

	return provider.Shutdown, nil
}

// Package observability wires OpenTelemetry distributed tracing.
//
// Spans are exported over OTLP HTTP to whatever collector the endpoint
// points at (an OTel Collector, a vendor agent, Jaeger's OTLP receiver).
// Tracing is optional: an empty endpoint leaves the default no-op global
// tracer in place and the rest of the application never notices.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.36.0"

	"github.com/candor0/candor/internal/log"
)

// Config for tracing setup.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint (host:port). Empty disables
	// tracing export entirely.
	Endpoint string

	// ServiceName identifies this service in trace backends.
	ServiceName string

	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string

	Logger log.Logger
}

// noopShutdown is returned when tracing is disabled.
func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider with an OTLP HTTP exporter.
// Returns a shutdown function that flushes pending spans; callers should
// invoke it during graceful shutdown.
//
// Exporter construction failures disable tracing with a warning instead of
// failing startup: tracing is never worth refusing to serve over.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled: no OTLP endpoint configured")
		return noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noopShutdown, nil
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	return tp.Shutdown, nil
}

// Package telemetry sets up OpenTelemetry tracing for dispatched operations.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "evfs"

type Config struct {
	// Endpoint of an OTLP/HTTP collector, either host:port (plain HTTP) or
	// a full URL. Empty disables tracing.
	Endpoint string

	ServiceVersion string
}

// Provider owns the tracer provider. A disabled Provider hands out no-op
// tracers.
type Provider struct {
	tp *sdktrace.TracerProvider
}

func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		slog.Debug("Tracing disabled")

		return &Provider{}, nil
	}

	var opts []otlptracehttp.Option
	if strings.Contains(cfg.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("(telemetry) failed to create exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	slog.Debug("Tracing enabled", "endpoint", cfg.Endpoint)

	return &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		),
	}, nil
}

func (p *Provider) Enabled() bool {
	return p.tp != nil
}

func (p *Provider) Tracer(name string) trace.Tracer { //nolint:ireturn
	if p.tp == nil {
		return noop.NewTracerProvider().Tracer(name)
	}

	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}

	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("(telemetry) failed to shut down: %w", err)
	}

	return nil
}

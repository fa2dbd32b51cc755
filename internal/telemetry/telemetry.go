// Package telemetry wires the global OpenTelemetry tracer/meter providers
// that internal/driver/sqlengine's engineTracer and engineMetrics publish
// through. The engine only ever calls otel.Tracer/otel.Meter, the same way
// the teacher's own storage layer does; without a provider installed those
// calls are harmless no-ops, so Setup is what turns them into something a
// human can see.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures Setup. An empty OTLPEndpoint means "local/dev mode":
// metrics are written to stdout alongside traces instead of shipped to a
// collector.
type Options struct {
	ServiceName  string
	OTLPEndpoint string
}

// Shutdown flushes and stops every provider Setup installed.
type Shutdown func(ctx context.Context) error

// Setup installs global TracerProvider and MeterProvider instances and
// returns a Shutdown that flushes and closes both. Call once at process
// startup, before the driver or resolver are constructed.
func Setup(ctx context.Context, opts Options) (Shutdown, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "resolver"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", opts.ServiceName)),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: building trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricReader, err := newMetricReader(ctx, opts.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metricReader),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutting down tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutting down meter provider: %w", err)
		}
		return nil
	}, nil
}

func newMetricReader(ctx context.Context, otlpEndpoint string) (metric.Reader, error) {
	if otlpEndpoint == "" {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("telemetry: building stdout metric exporter: %w", err)
		}
		return metric.NewPeriodicReader(exp), nil
	}

	exp, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(otlpEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building otlp metric exporter for %s: %w", otlpEndpoint, err)
	}
	return metric.NewPeriodicReader(exp), nil
}

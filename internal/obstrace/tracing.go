// Package obstrace wires OpenTelemetry distributed tracing for the memory
// engine, adapted from the teacher's internal/infrastructure/tracing
// package: the same OTLP-gRPC exporter, resource, and always-sample
// tracer-provider setup, generalized from a graph-repository-specific
// decorator to a StorageProvider-agnostic span helper any component can
// call.
package obstrace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps an OpenTelemetry TracerProvider scoped to this service.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init sets up the OTLP-gRPC exporter and registers the resulting
// TracerProvider as the global provider, mirroring the teacher's
// InitTracing. endpoint is the OTLP collector address (insecure gRPC; use
// TLS in production deployments).
func Init(ctx context.Context, serviceName, environment, endpoint string) (*Provider, error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Provider{sdk: tp, tracer: tp.Tracer(serviceName)}, nil
}

func (p *Provider) Shutdown(ctx context.Context) error { return p.sdk.Shutdown(ctx) }

// StartSpan starts a span under this provider's tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{}
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	return p.tracer.Start(ctx, name, opts...)
}

// Traced wraps an arbitrary operation in a span named name, recording an
// error on the span if op fails — the same record-error-on-span pattern
// the teacher's tracedNodeRepository uses for every repository method,
// generalized from a fixed interface to any function.
func (p *Provider) Traced(ctx context.Context, name string, attrs []attribute.KeyValue, op func(ctx context.Context) error) error {
	ctx, span := p.StartSpan(ctx, name, attrs...)
	defer span.End()
	if err := op(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

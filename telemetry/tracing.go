// Package telemetry sets up OpenTelemetry tracing for the mandel commands.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type TracerOption func(t *tracerConfig)

func WithOTLPEndpoint(endpoint string) TracerOption {
	return func(t *tracerConfig) {
		t.endpoint = endpoint
	}
}

func WithServiceName(serviceName string) TracerOption {
	return func(t *tracerConfig) {
		t.serviceName = serviceName
	}
}

func WithSamplingRatio(samplingRatio float64) TracerOption {
	return func(t *tracerConfig) {
		t.samplingRatio = samplingRatio
	}
}

// WithExporter replaces the OTLP exporter, mostly for tests.
func WithExporter(exp sdktrace.SpanExporter) TracerOption {
	return func(t *tracerConfig) {
		t.exporter = exp
	}
}

type tracerConfig struct {
	endpoint      string
	serviceName   string
	samplingRatio float64
	exporter      sdktrace.SpanExporter
}

// NewTracerProvider builds a tracer provider exporting over OTLP/gRPC and
// installs it as the global provider.
func NewTracerProvider(opts ...TracerOption) (*sdktrace.TracerProvider, error) {
	cfg := &tracerConfig{
		serviceName:   "mandel",
		samplingRatio: 1,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", cfg.serviceName),
		))
	if err != nil {
		return nil, fmt.Errorf("building trace resource: %w", err)
	}

	exp := cfg.exporter
	if exp == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cfg.endpoint),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to establish a connection with the otlp exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.samplingRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)

	return tp, nil
}

func MustNewTracerProvider(opts ...TracerOption) *sdktrace.TracerProvider {
	tp, err := NewTracerProvider(opts...)
	if err != nil {
		panic(err)
	}
	return tp
}

// Package observability wires distributed tracing and host resource
// sampling for the agent pool runtime.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// TracingConfig controls the tracer provider.
type TracingConfig struct {
	// ServiceName labels exported spans; defaults to "qaforge".
	ServiceName string `yaml:"service_name" json:"service_name"`
	// SamplingRate is the fraction of traces to sample, 0 to 1. Zero means
	// always sample (development default).
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	// PrettyPrint renders exported spans as indented JSON.
	PrettyPrint bool `yaml:"pretty_print" json:"pretty_print"`
}

// InitTracing installs a global tracer provider exporting spans to stdout
// and returns a shutdown function that flushes pending spans.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "qaforge"
	}

	opts := []stdouttrace.Option{}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "trace exporter setup failed")
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "trace resource setup failed")
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return provider.Shutdown, nil
}

package providers

import (
	"context"
	"strings"

	"gitlab.com/lake42/go-websocket-stream/example/configuration"
	"go.opentelemetry.io/otel"
	otlp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

func ProvideTracerProvider(ctx context.Context, config configuration.Configuration) (trace.TracerProvider, error) {
	if strings.ToLower(config.TracingEnabled) == "true" || config.TracingEnabled == "1" {
		// Configure OTLP exporter
		exp, err := otlp.New(ctx, otlp.WithEndpoint(config.OtlpTracingBackendEndpoint), otlp.WithInsecure())
		if err != nil {
			return nil, err
		}
		// Configure tracer provider
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String("wsstream.example"),
				semconv.DeploymentEnvironmentKey.String("production"),
			)),
		)
		// Register tracer provider as global tracer provider
		otel.SetTracerProvider(tp)
		// Return tracer provider
		return tp, nil
	} else {
		// Do not configure tracer provider.
		// Global tracer provider will return a NopTracerProvider
		return nil, nil
	}
}

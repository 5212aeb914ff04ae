package otelexport

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/itsneelabh/perfscope"
)

// ProviderOption customizes the providers built from a Config.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	writer io.Writer
}

// WithWriter sends stdout exporter output to w instead of os.Stdout.
func WithWriter(w io.Writer) ProviderOption {
	return func(o *providerOptions) {
		o.writer = w
	}
}

func buildOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{writer: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// newResource describes the service that produced the scopes.
func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// NewTracerProvider builds a tracer provider for cfg.Export. The "none"
// exporter yields a provider with no span processor.
func NewTracerProvider(ctx context.Context, cfg perfscope.Config, opts ...ProviderOption) (*sdktrace.TracerProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Export.Exporter {
	case perfscope.ExporterNone:
		return sdktrace.NewTracerProvider(sdktrace.WithResource(res)), nil
	case perfscope.ExporterStdout:
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(o.writer),
			stdouttrace.WithPrettyPrint(),
		)
	case perfscope.ExporterOTLP:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Export.Endpoint)}
		if cfg.Export.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, grpcOpts...)
	default:
		return nil, perfscope.NewError("NewTracerProvider", "export", perfscope.ErrUnsupportedExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", cfg.Export.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// NewMeterProvider builds a meter provider for cfg.Export. It returns nil
// when metrics are off or the exporter is "none".
func NewMeterProvider(ctx context.Context, cfg perfscope.Config, opts ...ProviderOption) (*sdkmetric.MeterProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Export.Metrics || cfg.Export.Exporter == perfscope.ExporterNone {
		return nil, nil
	}
	o := buildOptions(opts)

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	var exporter sdkmetric.Exporter
	switch cfg.Export.Exporter {
	case perfscope.ExporterStdout:
		exporter, err = stdoutmetric.New(
			stdoutmetric.WithWriter(o.writer),
			stdoutmetric.WithPrettyPrint(),
		)
	case perfscope.ExporterOTLP:
		httpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Export.MetricsEndpoint)}
		if cfg.Export.Insecure {
			httpOpts = append(httpOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, httpOpts...)
	default:
		return nil, perfscope.NewError("NewMeterProvider", "export", perfscope.ErrUnsupportedExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metric exporter: %w", cfg.Export.Exporter, err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

package otelcol

import (
	"context"

	"advocacy-engine/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"advocacy-engine/pkg/otelcol/exporters"
)

// Module wires the OTLP gRPC exporter into a tracer provider and installs it
// globally so zap call sites can pull trace ids from the active span.
var Module = fx.Module("otelcol",
	fx.Provide(exporters.ProvideGrpc, ProvideTracerProvider),
	fx.Invoke(setGlobals),
)

func serviceResource(cfg *config.Config) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	)
}

func ProvideTracerProvider(lc fx.Lifecycle, cfg *config.Config, exporter *otlptrace.Exporter) *trace.TracerProvider {
	tp := ProvideTrace(exporter, trace.WithResource(serviceResource(cfg)))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	return tp
}

func setGlobals(tp *trace.TracerProvider) {
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func defaultTraceProviderOption() []trace.TracerProviderOption {
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = defaultTraceProviderOption()
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

func defaultMetricProviderOption() []metric.Option {
	return []metric.Option{
		metric.WithResource(resource.Default()),
	}
}

func ProvideMetric(reader metric.Reader, opts ...metric.Option) *metric.MeterProvider {
	if len(opts) == 0 {
		opts = defaultMetricProviderOption()
	}

	opts = append(opts, metric.WithReader(reader))

	return metric.NewMeterProvider(opts...)
}

package exporters

import (
	"context"
	"time"

	"advocacy-engine/pkg/config"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
)

func ProvideHttp(cfg *config.Config) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if cfg.Otel.Addr != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Otel.Addr))
	}

	client := otlptracehttp.NewClient(opts...)

	return otlptrace.New(ctx, client)
}

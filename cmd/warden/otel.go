package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aegis-bot/warden/pkg/env"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Sets up span export over OTLP HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set (eg http://localhost:4318). The exporter reads the other OTEL_EXPORTER_OTLP_* variables itself.
//
// The returned func flushes pending spans. It is a no-op when tracing is off.
func configOTEL(ctx context.Context, serviceName string) (func(context.Context), error) {
	ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if ep == "" {
		return func(context.Context) {}, nil
	}

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(env.CurrentVersion()),
	}
	if deployment := os.Getenv("WARDEN_ENVIRONMENT"); deployment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(deployment))
	}
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
	)
	otel.SetTracerProvider(tp)
	slog.Info("trace export enabled", "endpoint", ep, "service", serviceName)

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("flushing trace exporter", "err", err)
		}
	}, nil
}

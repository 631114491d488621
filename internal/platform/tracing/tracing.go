// Package tracing wires the ambient OpenTelemetry tracer used by the
// otelgin request middleware. It is off by default (OTEL_ENABLED unset)
// so a plain local run never needs a collector reachable; exports to an
// OTLP endpoint when OTEL_EXPORTER_OTLP_ENDPOINT is set, otherwise to
// stdout so a developer can still see spans while iterating.
package tracing

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/clipforge/exportd/internal/platform/envutil"
	"github.com/clipforge/exportd/internal/platform/logger"
)

var (
	once     sync.Once
	shutdown func(context.Context) error = func(context.Context) error { return nil }
)

// Init sets the global TracerProvider that otelgin's middleware reads spans
// from. Idempotent: only the first call in a process does anything. The
// returned func must be called during App.Close to flush pending spans.
func Init(ctx context.Context, log *logger.Logger, serviceName string) func(context.Context) error {
	once.Do(func() {
		if !envutil.Bool("OTEL_ENABLED", false) {
			log.Info("otel tracing disabled (OTEL_ENABLED not set)")
			return
		}

		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		))
		if err != nil {
			log.Warn("otel resource init failed, continuing without resource attributes", "error", err)
			res = resource.Default()
		}

		exporter, err := buildExporter(ctx, log)
		if err != nil {
			log.Warn("otel exporter init failed, tracing stays disabled", "error", err)
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		log.Info("otel tracing initialized", "service", serviceName, "endpoint", otlpEndpoint())
	})
	return shutdown
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	endpoint := otlpEndpoint()
	if endpoint == "" {
		log.Warn("otel enabled with no OTLP endpoint configured, exporting to stdout")
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false) {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func otlpEndpoint() string {
	return strings.TrimSpace(envutil.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "", nil))
}

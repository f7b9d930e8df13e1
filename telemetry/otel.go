// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"supplement-effects/logger"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init configures tracing when OTEL_ENABLED is set. Spans go to the OTLP
// endpoint in OTEL_EXPORTER_OTLP_ENDPOINT, or to stdout without one.
// Exporter failures are logged and tracing continues without export.
func Init(ctx context.Context, log *logger.Logger, cfg Config) Shutdown {
	if !Enabled() {
		return noop
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "supplement-effects"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(SampleRatio()))),
		sdktrace.WithResource(res),
	}
	exporter, err := buildExporter(ctx, log)
	if err != nil {
		log.Warn("otel exporter init failed (continuing)", "error", err)
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Info("otel tracing initialized", "service", name, "endpoint", endpoint())
	return tp.Shutdown
}

func Enabled() bool {
	return truthy(os.Getenv("OTEL_ENABLED"))
}

// SampleRatio reads OTEL_SAMPLER_RATIO, clamped to [0,1]. Defaults to 0.1.
func SampleRatio() float64 {
	v := strings.TrimSpace(os.Getenv("OTEL_SAMPLER_RATIO"))
	if v == "" {
		return 0.1
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0.1
	}
	return min(max(f, 0), 1)
}

func endpoint() string {
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func buildExporter(ctx context.Context, log *logger.Logger) (sdktrace.SpanExporter, error) {
	if ep := endpoint(); ep != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(ep)}
		if truthy(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")) {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return exp, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	log.Warn("otel using stdout exporter (no OTLP endpoint configured)")
	return exp, nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

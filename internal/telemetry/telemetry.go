// Package telemetry wires optional OpenTelemetry traces and metrics into
// salewatch. Everything is off unless SW_OTEL_ENABLED=true; the off path
// installs no-op providers and costs nothing at runtime.
//
// Exporters, when enabled:
//
//	SW_OTEL_STDOUT=true                    pretty-print to stdout (dev mode)
//	OTEL_EXPORTER_OTLP_ENDPOINT=host:4317  OTLP over gRPC (insecure)
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT    metrics-only endpoint override
//
// With neither set, traces fall back to stdout so an enabled run is never
// silent.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/salewatch/salewatch"

// Flush intervals for the periodic metric readers.
const (
	stdoutMetricInterval = 15 * time.Second
	otlpMetricInterval   = 30 * time.Second
)

var shutdowns []func(context.Context) error

// Enabled reports whether telemetry is active (SW_OTEL_ENABLED=true).
func Enabled() bool {
	return os.Getenv("SW_OTEL_ENABLED") == "true"
}

// exportTargets is the exporter selection read from the environment once per
// Init.
type exportTargets struct {
	stdout         bool
	traceEndpoint  string
	metricEndpoint string
}

func targetsFromEnv() exportTargets {
	t := exportTargets{
		stdout:        os.Getenv("SW_OTEL_STDOUT") == "true",
		traceEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	t.metricEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if t.metricEndpoint == "" {
		t.metricEndpoint = t.traceEndpoint
	}
	return t
}

// Init installs the global trace and meter providers. When telemetry is off
// these are no-ops and Init returns without touching the environment further.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	targets := targetsFromEnv()

	tp, err := traceProvider(ctx, res, targets)
	if err != nil {
		return fmt.Errorf("telemetry: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdowns = append(shutdowns, tp.Shutdown)

	mp, err := meterProvider(ctx, res, targets)
	if err != nil {
		return fmt.Errorf("telemetry: metric provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdowns = append(shutdowns, mp.Shutdown)

	return nil
}

func traceProvider(ctx context.Context, res *resource.Resource, targets exportTargets) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	// Stdout when asked for, or when no OTLP endpoint is configured at all.
	if targets.stdout || targets.traceEndpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if targets.traceEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(targets.traceEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func meterProvider(ctx context.Context, res *resource.Resource, targets exportTargets) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if targets.stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(stdoutMetricInterval)),
		))
	}
	if targets.metricEndpoint != "" {
		exp, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(targets.metricEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpMetricInterval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer for name, defaulting to the module scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = scopeName
	}
	return otel.Tracer(name)
}

// Meter returns a meter for name, defaulting to the module scope.
func Meter(name string) metric.Meter {
	if name == "" {
		name = scopeName
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops every provider Init installed. Callers should
// pass a short-lived context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdowns {
		_ = fn(ctx)
	}
	shutdowns = nil
}

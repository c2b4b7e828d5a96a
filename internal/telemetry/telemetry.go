// Package telemetry wires OpenTelemetry tracing and metrics.
//
// Telemetry is off unless ISSUESMITH_OTEL_STDOUT=true, in which case spans
// and metrics are pretty-printed to stderr.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const scope = "github.com/lucasnoah/issuesmith"

var shutdownFns []func(context.Context) error

// Enabled reports whether telemetry export is on.
func Enabled() bool {
	return os.Getenv("ISSUESMITH_OTEL_STDOUT") == "true"
}

// Init installs global providers. When disabled it installs no-op
// providers.
func Init(ctx context.Context, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "issuesmith"),
			attribute.String("service.version", version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	texp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("telemetry: trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(texp),
	)
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mexp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("telemetry: metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(mexp, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)
	return nil
}

// Tracer returns the project tracer.
func Tracer() trace.Tracer { return otel.Tracer(scope) }

// Meter returns the project meter.
func Meter() metric.Meter { return otel.Meter(scope) }

// Shutdown flushes and stops the providers installed by Init.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}

// Instruments holds the run-level counters.
type Instruments struct {
	Transitions metric.Int64Counter
	Retries     metric.Int64Counter
}

// NewInstruments creates the counters on the current global meter.
func NewInstruments() *Instruments {
	m := Meter()
	transitions, _ := m.Int64Counter("issuesmith.phase.transitions",
		metric.WithDescription("Phase transitions entered by runs"),
	)
	retries, _ := m.Int64Counter("issuesmith.retries",
		metric.WithDescription("Bounded retries consumed, by kind"),
	)
	return &Instruments{Transitions: transitions, Retries: retries}
}

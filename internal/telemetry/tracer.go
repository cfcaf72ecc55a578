// Package telemetry wires OpenTelemetry tracing for the solver.
package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Version is the service version stamped into trace resources. Overridden
// at build time via -ldflags.
var Version = "dev"

// exporterEnv selects the span exporter: "stdout" (default) or "none" to
// disable tracing entirely.
const exporterEnv = "GROVER_TRACE_EXPORTER"

// environmentEnv names the deployment environment attached to every span
// resource. Defaults to "development".
const environmentEnv = "GROVER_ENV"

// InitTracer installs the global tracer provider and returns its shutdown
// function. With tracing disabled the returned shutdown is a no-op.
func InitTracer(serviceName string, logger *slog.Logger) (func(context.Context) error, error) {
	if os.Getenv(exporterEnv) == "none" {
		logger.Info("tracing disabled", slog.String("service", serviceName))
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	environment := os.Getenv(environmentEnv)
	if environment == "" {
		environment = "development"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.String("environment", environment))
	return tp.Shutdown, nil
}

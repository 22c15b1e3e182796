package telemetry

import (
	"context"

	"github.com/fourmitrack/fourmitrack/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// WorkerTracer is the tracer name used for worker cycles.
const WorkerTracer = "fourmitrack/worker"

// StartTracing configures OpenTelemetry to export to Uptrace. It returns
// false and leaves the global no-op provider in place when no DSN is set.
func StartTracing(cfg *config.Telemetry, version string) bool {
	if cfg.DSN == "" {
		return false
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.DSN),
		uptrace.WithServiceName(cfg.ServiceName),
		uptrace.WithServiceVersion(version),
		uptrace.WithDeploymentEnvironment(cfg.Environment),
	)

	return true
}

// StopTracing flushes pending spans.
func StopTracing(ctx context.Context) error {
	return uptrace.Shutdown(ctx)
}

// Tracer returns the tracer used for worker cycles.
func Tracer() trace.Tracer {
	return otel.Tracer(WorkerTracer)
}

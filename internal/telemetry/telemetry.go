// Package telemetry configures the relay's debug trace pipeline. Tracing is
// off by default; when enabled, spans are written to the given writer as
// JSON so routing decisions can be inspected without external collectors.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ShutdownFunc flushes and stops the trace pipeline.
type ShutdownFunc func(context.Context) error

// Setup builds the tracer. When disabled it returns a no-op tracer and a
// no-op shutdown so callers never branch.
func Setup(enabled bool, w io.Writer) (trace.Tracer, ShutdownFunc, error) {
	if !enabled {
		return noop.NewTracerProvider().Tracer("toolbridge"),
			func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	return tp.Tracer("toolbridge"), tp.Shutdown, nil
}

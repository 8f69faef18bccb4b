// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tracing configures OpenTelemetry spans for scenario runs.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "onellm/proxycheck"

// Tracing bundles the tracer and the propagator used to inject trace
// context into outgoing proxy requests.
type Tracing struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator
	// shutdown is nil when no provider was created.
	shutdown func(context.Context) error
}

// Shutdown flushes and stops the provider, if one was created.
func (t Tracing) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// Noop returns tracing that records and propagates nothing.
func Noop() Tracing {
	return Tracing{
		Tracer:     noop.NewTracerProvider().Tracer(tracerName),
		Propagator: propagation.NewCompositeTextMapPropagator(),
	}
}

// NewTracingFromEnv configures tracing from OTEL_* variables. It is a no-op
// unless OTEL_TRACES_EXPORTER or OTEL_EXPORTER_OTLP_ENDPOINT is set.
// OTEL_TRACES_EXPORTER=console writes spans synchronously to stdout.
func NewTracingFromEnv(ctx context.Context, stdout io.Writer) (Tracing, error) {
	exporter := os.Getenv("OTEL_TRACES_EXPORTER")
	if os.Getenv("OTEL_SDK_DISABLED") == "true" || exporter == "none" ||
		(exporter == "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "") {
		return Noop(), nil
	}

	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return Tracing{}, fmt.Errorf("failed to create resource from env: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName("proxycheck")))
	if err != nil {
		return Tracing{}, fmt.Errorf("failed to merge default resources: %w", err)
	}
	res, err = resource.Merge(res, envRes)
	if err != nil {
		return Tracing{}, fmt.Errorf("failed to merge env resource: %w", err)
	}

	var tp *sdktrace.TracerProvider
	if exporter == "console" {
		stdoutExporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return Tracing{}, fmt.Errorf("failed to create console exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(stdoutExporter),
			sdktrace.WithResource(res),
		)
	} else {
		autoExporter, err := autoexport.NewSpanExporter(ctx)
		if err != nil {
			return Tracing{}, fmt.Errorf("failed to create exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(autoExporter),
			sdktrace.WithResource(res),
		)
	}

	return Tracing{
		Tracer:     tp.Tracer(tracerName),
		Propagator: autoprop.NewTextMapPropagator(),
		shutdown:   tp.Shutdown,
	}, nil
}

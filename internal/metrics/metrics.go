// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics records latency and outcome of chat-completion checks.
package metrics

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "onellm/proxycheck"

// NewMeterFromEnv returns a meter that always feeds promReader and, depending
// on OTEL_METRICS_EXPORTER and OTEL_EXPORTER_OTLP_*ENDPOINT, a console or OTLP
// exporter as well. OTEL_SDK_DISABLED=true keeps only the Prometheus reader.
func NewMeterFromEnv(ctx context.Context, stdout io.Writer, promReader sdkmetric.Reader) (metric.Meter, func(context.Context) error, error) {
	options := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if os.Getenv("OTEL_SDK_DISABLED") != "true" {
		exporter := os.Getenv("OTEL_METRICS_EXPORTER")
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""

		if exporter == "console" || (exporter != "none" && exporter != "prometheus" && hasOTLPEndpoint) {
			res, err := newResource(ctx)
			if err != nil {
				return nil, nil, err
			}
			options = append(options, sdkmetric.WithResource(res))

			if exporter == "console" {
				exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stdout))
				if err != nil {
					return nil, nil, fmt.Errorf("failed to create console exporter: %w", err)
				}
				options = append(options, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
			} else {
				otelReader, err := autoexport.NewMetricReader(ctx)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to create OTLP reader: %w", err)
				}
				options = append(options, sdkmetric.WithReader(otelReader))
			}
		}
	}

	mp := sdkmetric.NewMeterProvider(options...)
	return mp.Meter(meterName), mp.Shutdown, nil
}

// NewPrometheus creates a registry and an OpenTelemetry reader exporting into it.
func NewPrometheus() (*prometheus.Registry, sdkmetric.Reader, error) {
	registry := prometheus.NewRegistry()
	reader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus reader: %w", err)
	}
	return registry, reader, nil
}

// newResource merges, in increasing precedence, the SDK defaults, a fallback
// service name and OTEL_SERVICE_NAME / OTEL_RESOURCE_ATTRIBUTES.
func newResource(ctx context.Context) (*resource.Resource, error) {
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource from env: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName("proxycheck")))
	if err != nil {
		return nil, fmt.Errorf("failed to merge default resources: %w", err)
	}
	return resource.Merge(res, envRes)
}

// WriteTextfile dumps the registry in the Prometheus text format, for the
// node_exporter textfile collector after one-shot runs.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

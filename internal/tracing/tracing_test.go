// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
)

func clearOTELEnv(t *testing.T) {
	for _, k := range []string{"OTEL_SDK_DISABLED", "OTEL_TRACES_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_PROPAGATORS"} {
		t.Setenv(k, "")
	}
}

func TestNewTracingFromEnv_Noop(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unset"},
		{name: "none", env: map[string]string{"OTEL_TRACES_EXPORTER": "none"}},
		{name: "sdk disabled", env: map[string]string{"OTEL_SDK_DISABLED": "true", "OTEL_TRACES_EXPORTER": "console"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearOTELEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			var stdout bytes.Buffer
			tr, err := NewTracingFromEnv(t.Context(), &stdout)
			require.NoError(t, err)

			_, span := tr.Tracer.Start(t.Context(), "noop")
			require.False(t, span.SpanContext().IsValid())
			span.End()
			require.NoError(t, tr.Shutdown(t.Context()))
			require.Empty(t, stdout.String())
		})
	}
}

func TestNewTracingFromEnv_Console(t *testing.T) {
	clearOTELEnv(t)
	t.Setenv("OTEL_TRACES_EXPORTER", "console")
	t.Setenv("OTEL_SERVICE_NAME", "proxycheck-test")

	var stdout bytes.Buffer
	tr, err := NewTracingFromEnv(t.Context(), &stdout)
	require.NoError(t, err)

	ctx, span := tr.Tracer.Start(t.Context(), "proxycheck openai-chat-completion")
	require.True(t, span.SpanContext().IsValid())

	header := http.Header{}
	tr.Propagator.Inject(ctx, propagation.HeaderCarrier(header))
	require.NotEmpty(t, header.Get("traceparent"))

	span.End()
	require.NoError(t, tr.Shutdown(t.Context()))
	require.Contains(t, stdout.String(), "proxycheck openai-chat-completion")
	require.Contains(t, stdout.String(), "proxycheck-test")
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	attrScenario = "proxycheck.scenario"
	attrModel    = "gen_ai.request.model"
	attrStream   = "proxycheck.stream"
	attrOutcome  = "proxycheck.outcome"

	outcomePass  = "pass"
	outcomeFail  = "fail"
	outcomeError = "error"
)

// durationBuckets spans a fast local mock (~1ms) to a slow upstream (~80s).
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80}

// ChatCheck is the instrument set used by the scenario runner.
type ChatCheck interface {
	// RecordRequest records the wall time of one scenario request,
	// including the whole stream for streaming scenarios.
	RecordRequest(ctx context.Context, scenario, model string, stream bool, d time.Duration)
	// RecordTimeToFirstChunk records the delay until the first stream chunk.
	RecordTimeToFirstChunk(ctx context.Context, scenario, model string, d time.Duration)
	// RecordResult counts one scenario outcome. err takes precedence over passed.
	RecordResult(ctx context.Context, scenario, model string, passed bool, err bool)
}

type chatCheck struct {
	requestDuration  metric.Float64Histogram
	timeToFirstChunk metric.Float64Histogram
	results          metric.Float64Counter
}

// NewChatCheck registers the instruments on meter.
func NewChatCheck(meter metric.Meter) ChatCheck {
	return &chatCheck{
		requestDuration: secondsHistogram(meter, "proxycheck.request.duration",
			"Duration of a chat-completion check request, stream included."),
		timeToFirstChunk: secondsHistogram(meter, "proxycheck.stream.time_to_first_chunk",
			"Time until the first chunk of a streamed chat completion."),
		results: must(meter.Float64Counter("proxycheck.scenario.results",
			metric.WithDescription("Number of scenario outcomes."))),
	}
}

// NewNoopChatCheck returns instruments that record nothing.
func NewNoopChatCheck() ChatCheck {
	return NewChatCheck(noop.NewMeterProvider().Meter(meterName))
}

func (c *chatCheck) RecordRequest(ctx context.Context, scenario, model string, stream bool, d time.Duration) {
	c.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(attrScenario, scenario),
		attribute.String(attrModel, model),
		attribute.Bool(attrStream, stream),
	))
}

func (c *chatCheck) RecordTimeToFirstChunk(ctx context.Context, scenario, model string, d time.Duration) {
	c.timeToFirstChunk.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(attrScenario, scenario),
		attribute.String(attrModel, model),
	))
}

func (c *chatCheck) RecordResult(ctx context.Context, scenario, model string, passed bool, err bool) {
	outcome := outcomeFail
	switch {
	case err:
		outcome = outcomeError
	case passed:
		outcome = outcomePass
	}
	c.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrScenario, scenario),
		attribute.String(attrModel, model),
		attribute.String(attrOutcome, outcome),
	))
}

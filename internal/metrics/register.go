// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// secondsHistogram registers a histogram of durations in seconds, bucketed
// for chat-completion latencies.
func secondsHistogram(meter metric.Meter, name, description string) metric.Float64Histogram {
	return must(meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)))
}

// must panics on instrument registration errors, which only come from
// invalid names or options.
func must[T any](instrument T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("failed to register instrument: %v", err))
	}
	return instrument
}

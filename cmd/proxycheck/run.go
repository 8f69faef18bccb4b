// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onellm/proxycheck/internal/chatcheck"
	"github.com/onellm/proxycheck/internal/history"
	"github.com/onellm/proxycheck/internal/metrics"
	"github.com/onellm/proxycheck/internal/tracing"
)

// telemetry bundles what a runner reports to.
type telemetry struct {
	registry *prometheus.Registry
	metrics  metrics.ChatCheck
	tracing  tracing.Tracing
	shutdown []func(context.Context) error
}

func newTelemetry(ctx context.Context, stdout io.Writer) (*telemetry, error) {
	registry, promReader, err := metrics.NewPrometheus()
	if err != nil {
		return nil, err
	}
	meter, meterShutdown, err := metrics.NewMeterFromEnv(ctx, stdout, promReader)
	if err != nil {
		return nil, err
	}
	tr, err := tracing.NewTracingFromEnv(ctx, stdout)
	if err != nil {
		_ = meterShutdown(ctx)
		return nil, err
	}
	return &telemetry{
		registry: registry,
		metrics:  metrics.NewChatCheck(meter),
		tracing:  tr,
		shutdown: []func(context.Context) error{meterShutdown, tr.Shutdown},
	}, nil
}

// Shutdown flushes pending spans and metrics.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		errs = append(errs, fn(context.WithoutCancel(ctx)))
	}
	return errors.Join(errs...)
}

// newRunner resolves the suite and its target and builds a runner reporting to tel.
func newRunner(f SuiteFlags, logger *slog.Logger, tel *telemetry) (*chatcheck.Runner, chatcheck.Suite, error) {
	suite, err := loadSuite(f)
	if err != nil {
		return nil, chatcheck.Suite{}, err
	}
	target, err := resolveTarget(f.TargetFlags, suite.Profile)
	if err != nil {
		return nil, chatcheck.Suite{}, err
	}
	r, err := chatcheck.NewRunner(target, chatcheck.Options{
		Logger:      logger,
		Metrics:     tel.metrics,
		Tracing:     tel.tracing,
		Parallelism: f.Parallelism,
		Timeout:     f.Timeout,
	})
	if err != nil {
		return nil, chatcheck.Suite{}, err
	}
	return r, suite, nil
}

// run executes one suite and prints its report to stdout. It returns
// errScenariosFailed when a scenario failed, unless the run is advisory.
func run(ctx context.Context, c cmdRun, stdout, stderr io.Writer) (err error) {
	logger := newLogger(stderr, c.Debug)

	tel, err := newTelemetry(ctx, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := tel.Shutdown(ctx); shutdownErr != nil {
			logger.Error("failed to shutdown telemetry", slog.String("error", shutdownErr.Error()))
		}
	}()

	r, suite, err := newRunner(c.SuiteFlags, logger, tel)
	if err != nil {
		return err
	}
	logger.Info("running suite", slog.String("suite", suite.Name), slog.String("target", r.Target().String()))
	report, err := r.Run(ctx, suite)
	if err != nil {
		if report == nil {
			return fmt.Errorf("run of suite %q aborted: %w", suite.Name, err)
		}
		// Interrupted: show what finished, but keep it out of history.
		if writeErr := report.Write(stdout, c.Format); writeErr != nil {
			logger.Error("failed to write partial report", slog.String("error", writeErr.Error()))
		}
		return fmt.Errorf("run of suite %q aborted: %w", suite.Name, err)
	}
	if err = report.Write(stdout, c.Format); err != nil {
		return err
	}

	if c.MetricsFile != "" {
		if err = metrics.WriteTextfile(c.MetricsFile, tel.registry); err != nil {
			return err
		}
	}
	if c.History != "" {
		if err = saveReport(ctx, c.History, report); err != nil {
			return err
		}
	}

	if report.Failed() > 0 && !c.Advisory {
		return errScenariosFailed
	}
	return nil
}

func saveReport(ctx context.Context, path string, report *chatcheck.Report) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Save(ctx, report)
}

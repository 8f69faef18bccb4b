// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/onellm/proxycheck/internal/chatcheck"
	"github.com/onellm/proxycheck/internal/history"
	"github.com/onellm/proxycheck/internal/pprof"
	"github.com/onellm/proxycheck/internal/schedule"
)

// watch runs the suite on a schedule until ctx is done, storing every report
// and serving /metrics and /health on the admin port.
func watch(ctx context.Context, c cmdWatch, stdout, stderr io.Writer) (err error) {
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

	store, err := history.Open(ctx, c.History)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	printSink := func(_ context.Context, report *chatcheck.Report) error {
		return report.Write(stdout, chatcheck.FormatText)
	}
	w, err := schedule.NewWatcher(c.Schedule, func(ctx context.Context) (*chatcheck.Report, error) {
		return r.Run(ctx, suite)
	}, logger, store.Save, printSink)
	if err != nil {
		return err
	}

	if c.PprofPort > 0 {
		pprofLis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.PprofPort))
		if err != nil {
			return fmt.Errorf("failed to listen on pprof port %d: %w", c.PprofPort, err)
		}
		pprof.Start(ctx, pprofLis, logger)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", c.AdminPort))
	if err != nil {
		return fmt.Errorf("failed to listen on admin port %d: %w", c.AdminPort, err)
	}
	admin := schedule.StartAdminServer(lis, logger, tel.registry, w)

	logger.Info("watching", slog.String("suite", suite.Name), slog.String("target", r.Target().String()), slog.String("schedule", c.Schedule))
	w.Start(ctx)
	<-ctx.Done()
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown admin server gracefully", slog.String("error", err.Error()))
	}
	return nil
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package schedule runs suites periodically and exposes their health.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/onellm/proxycheck/internal/chatcheck"
)

// RunFunc executes one suite run.
type RunFunc func(ctx context.Context) (*chatcheck.Report, error)

// ReportSink receives every completed report, for example to store it.
type ReportSink func(ctx context.Context, report *chatcheck.Report) error

// ErrRunInProgress is returned by RunOnce while another run holds the lock.
var ErrRunInProgress = errors.New("a run is already in progress")

// parser accepts five-field specs and descriptors such as "@every 5m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a schedule expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Watcher runs a suite on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Watcher struct {
	schedule cron.Schedule
	run      RunFunc
	sinks    []ReportSink
	logger   *slog.Logger

	lock      sync.Mutex // held for the duration of a run
	completed atomic.Bool
	last      atomic.Pointer[chatcheck.Report]

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher. It does nothing until Start.
func NewWatcher(spec string, run RunFunc, logger *slog.Logger, sinks ...ReportSink) (*Watcher, error) {
	s, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{schedule: s, run: run, sinks: sinks, logger: logger}, nil
}

// Start runs the suite once right away and then on every tick, until Stop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, w.cancel = context.WithCancel(ctx)

	tick := func() {
		err := w.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			w.logger.Warn("previous run still in progress, skipping tick")
		case errors.Is(err, context.Canceled):
			w.logger.Info("run cancelled", slog.String("error", err.Error()))
		case err != nil:
			w.logger.Error("run failed", slog.String("error", err.Error()))
		}
	}
	w.cron = cron.New(cron.WithParser(parser))
	w.cron.Schedule(w.schedule, cron.FuncJob(tick))
	w.cron.Start()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		tick()
	}()
	w.logger.Info("watcher started", slog.Time("next", w.schedule.Next(time.Now())))
}

// Stop cancels the in-flight run and waits for it to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
	w.wg.Wait()
	w.logger.Info("watcher stopped")
}

// RunOnce executes one run unless another is in progress, then hands the
// report to every sink. Sink errors are joined into the returned error. A run
// whose context is cancelled is discarded.
func (w *Watcher) RunOnce(ctx context.Context) error {
	if !w.lock.TryLock() {
		return ErrRunInProgress
	}
	defer w.lock.Unlock()

	report, err := w.run(ctx)
	if report == nil {
		if err == nil {
			err = errors.New("run returned no report")
		}
		return err
	}
	// A cancelled run is partial: it neither counts as completed nor reaches
	// the sinks.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("run %s of suite %q cancelled: %w", report.RunID, report.Suite, errors.Join(err, ctxErr))
	}
	w.last.Store(report)
	w.completed.Store(true)

	errs := []error{err}
	for _, sink := range w.sinks {
		errs = append(errs, sink(ctx, report))
	}
	w.logger.Info("run completed",
		slog.String("run", report.RunID),
		slog.String("suite", report.Suite),
		slog.Int("failed", report.Failed()),
		slog.Int("total", len(report.Results)),
	)
	return errors.Join(errs...)
}

// Healthy reports whether at least one run has completed. A run with failed
// scenarios still counts.
func (w *Watcher) Healthy() bool {
	return w.completed.Load()
}

// Last returns the most recent report, or nil before the first run.
func (w *Watcher) Last() *chatcheck.Report {
	return w.last.Load()
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthPath is the admin endpoint queried by `proxycheck healthcheck`.
const HealthPath = "/health"

// StartAdminServer starts an HTTP admin server on the provided listener for
// serving Prometheus metrics and health checks. It exposes two endpoints:
//   - /metrics: Serves Prometheus metrics using the provided registry.
//   - /health: 200 once the watcher completed a run, 503 before.
//
// The server returned is running in a goroutine.
func StartAdminServer(lis net.Listener, logger *slog.Logger, registry prometheus.Gatherer, w *Watcher) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc(HealthPath, func(rw http.ResponseWriter, _ *http.Request) {
		if !w.Healthy() {
			http.Error(rw, "no run completed yet", http.StatusServiceUnavailable)
			return
		}
		last := w.Last()
		rw.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(rw, "OK\nlast run %s: %d/%d passed\n", last.RunID, len(last.Results)-last.Failed(), len(last.Results))
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting admin server", "address", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin server failed", "error", err)
		}
	}()
	return server
}

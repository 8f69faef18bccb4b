// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package pprof serves the runtime profiling endpoints of a long-running watcher.
package pprof

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"
)

// DisableEnvVarKey turns the pprof server off when set to any value, even if a port was requested.
const DisableEnvVarKey = "DISABLE_PPROF"

// Start serves /debug/pprof/ on lis until ctx is done. It does not block.
// When DISABLE_PPROF is set, lis is closed and nothing is served.
func Start(ctx context.Context, lis net.Listener, logger *slog.Logger) {
	if _, ok := os.LookupEnv(DisableEnvVarKey); ok {
		logger.Info("pprof disabled", slog.String("env", DisableEnvVarKey))
		_ = lis.Close()
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("starting pprof server", slog.String("address", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down pprof server", slog.String("error", err.Error()))
		}
	}()
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/onellm/proxycheck/internal/chatcheck"
	internaltesting "github.com/onellm/proxycheck/internal/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.DiscardHandler)

func okReport() *chatcheck.Report {
	return &chatcheck.Report{RunID: "run-1", Suite: "mocked", Results: []chatcheck.Result{{Scenario: "a", Passed: true}, {Scenario: "b"}}}
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"*/5 * * * *", "@every 30s", "@hourly"} {
		_, err := ParseSchedule(spec)
		require.NoError(t, err, spec)
	}
	_, err := ParseSchedule("* * * * * *")
	require.ErrorContains(t, err, `invalid schedule "* * * * * *"`)
	_, err = NewWatcher("nope", nil, discard)
	require.Error(t, err)
}

func TestWatcher_RunOnce(t *testing.T) {
	var stored []*chatcheck.Report
	sink := func(_ context.Context, r *chatcheck.Report) error {
		stored = append(stored, r)
		return nil
	}
	failingSink := func(context.Context, *chatcheck.Report) error { return errors.New("disk full") }

	w, err := NewWatcher("@hourly", func(context.Context) (*chatcheck.Report, error) {
		return okReport(), nil
	}, discard, sink, failingSink)
	require.NoError(t, err)
	require.False(t, w.Healthy())
	require.Nil(t, w.Last())

	require.EqualError(t, w.RunOnce(t.Context()), "disk full")
	require.True(t, w.Healthy())
	require.Equal(t, "run-1", w.Last().RunID)
	require.Len(t, stored, 1)
}

func TestWatcher_RunOnce_NoReport(t *testing.T) {
	w, err := NewWatcher("@hourly", func(context.Context) (*chatcheck.Report, error) {
		return nil, errors.New("no target")
	}, discard)
	require.NoError(t, err)
	require.EqualError(t, w.RunOnce(t.Context()), "no target")
	require.False(t, w.Healthy())
}

func TestWatcher_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	w, err := NewWatcher("@hourly", func(context.Context) (*chatcheck.Report, error) {
		close(started)
		<-release
		return okReport(), nil
	}, discard)
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- w.RunOnce(t.Context()) }()
	<-started
	require.ErrorIs(t, w.RunOnce(t.Context()), ErrRunInProgress)
	close(release)
	require.NoError(t, <-done)
}

func TestWatcher_StartStop(t *testing.T) {
	var runs atomic.Int32
	w, err := NewWatcher("@every 1s", func(ctx context.Context) (*chatcheck.Report, error) {
		runs.Add(1)
		return okReport(), ctx.Err()
	}, discard)
	require.NoError(t, err)

	w.Start(t.Context())
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, internaltesting.Poll(ctx, 50*time.Millisecond, func(context.Context) error {
		if runs.Load() < 2 {
			return errors.New("waiting for a scheduled run")
		}
		return nil
	}))
	w.Stop()
	require.True(t, w.Healthy())
}

func TestWatcher_StopDiscardsCancelledRun(t *testing.T) {
	started := make(chan struct{})
	var sunk atomic.Int32
	sink := func(context.Context, *chatcheck.Report) error {
		sunk.Add(1)
		return nil
	}
	w, err := NewWatcher("@hourly", func(ctx context.Context) (*chatcheck.Report, error) {
		close(started)
		<-ctx.Done()
		// Runner.Run returns the partial report along with the context error.
		return okReport(), ctx.Err()
	}, discard, sink)
	require.NoError(t, err)

	w.Start(t.Context())
	<-started
	w.Stop()

	require.Zero(t, sunk.Load())
	require.False(t, w.Healthy())
	require.Nil(t, w.Last())
}

func TestWatcher_RunOnce_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	w, err := NewWatcher("@hourly", func(ctx context.Context) (*chatcheck.Report, error) {
		return okReport(), ctx.Err()
	}, discard, func(context.Context, *chatcheck.Report) error {
		t.Fatal("cancelled run reached a sink")
		return nil
	})
	require.NoError(t, err)

	err = w.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorContains(t, err, `run run-1 of suite "mocked" cancelled`)
	require.False(t, w.Healthy())
}

func TestStartAdminServer(t *testing.T) {
	release := make(chan struct{})
	w, err := NewWatcher("@hourly", func(context.Context) (*chatcheck.Report, error) {
		<-release
		return okReport(), nil
	}, discard)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "proxycheck_test_total"}))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := StartAdminServer(lis, slog.New(slog.NewTextHandler(io.Discard, nil)), registry, w)
	tr := &http.Transport{}
	client := &http.Client{Transport: tr}
	defer func() {
		tr.CloseIdleConnections()
		require.NoError(t, server.Close())
	}()
	base := "http://" + lis.Addr().String()

	get := func(path string) (int, string) {
		resp, err := client.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	code, _ := get(HealthPath)
	require.Equal(t, http.StatusServiceUnavailable, code)

	close(release)
	require.NoError(t, w.RunOnce(t.Context()))
	code, body := get(HealthPath)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK\nlast run run-1: 1/2 passed\n", body)

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.Contains(body, "proxycheck_test_total 0"))
}

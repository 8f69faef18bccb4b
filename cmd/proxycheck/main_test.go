// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onellm/proxycheck/internal/history"
	"github.com/onellm/proxycheck/internal/version"
)

func ptrTo[T any](v T) *T { return &v }

func Test_doMain(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		env            map[string]string
		h              handlers
		expOut         string
		expOutContains string
		expPanicCode   *int
	}{
		{
			name:           "help",
			args:           []string{"--help"},
			expOutContains: "Usage: proxycheck <command>",
			expPanicCode:   ptrTo(0),
		},
		{
			name:   "version",
			args:   []string{"version"},
			expOut: "proxycheck: " + version.Current() + "\n",
		},
		{
			name:           "version help",
			args:           []string{"version", "--help"},
			expOutContains: "Usage: proxycheck version",
			expPanicCode:   ptrTo(0),
		},
		{
			name: "run defaults",
			args: []string{"run"},
			h: handlers{run: func(_ context.Context, c cmdRun, _, _ io.Writer) error {
				require.Equal(t, "proxy", c.Suite)
				require.Equal(t, 1, c.Parallelism)
				require.Equal(t, 60*time.Second, c.Timeout)
				require.Equal(t, "text", c.Format)
				require.Empty(t, c.Profile)
				require.Empty(t, c.History)
				require.False(t, c.Advisory)
				return nil
			}},
		},
		{
			name: "run with flags",
			args: []string{
				"run", "--suite", "mocked", "--parallelism", "4", "--format", "json",
				"--base-url", "http://127.0.0.1:9999/v1", "--api-key", "k", "--profile", "mocked",
				"--timeout", "5s", "--history", "h.db", "--metrics-file", "m.prom", "--advisory", "--debug",
			},
			h: handlers{run: func(_ context.Context, c cmdRun, _, _ io.Writer) error {
				require.Equal(t, "mocked", c.Suite)
				require.Equal(t, 4, c.Parallelism)
				require.Equal(t, "json", c.Format)
				require.Equal(t, "http://127.0.0.1:9999/v1", c.BaseURL)
				require.Equal(t, "k", c.APIKey)
				require.Equal(t, "mocked", c.Profile)
				require.Equal(t, 5*time.Second, c.Timeout)
				require.Equal(t, "h.db", c.History)
				require.Equal(t, "m.prom", c.MetricsFile)
				require.True(t, c.Advisory)
				require.True(t, c.Debug)
				return nil
			}},
		},
		{
			name:         "run unknown format",
			args:         []string{"run", "--format", "xml"},
			h:            handlers{run: func(context.Context, cmdRun, io.Writer, io.Writer) error { return nil }},
			expPanicCode: ptrTo(80),
		},
		{
			name:         "run zero parallelism",
			args:         []string{"run", "--parallelism", "0"},
			h:            handlers{run: func(context.Context, cmdRun, io.Writer, io.Writer) error { return nil }},
			expPanicCode: ptrTo(80),
		},
		{
			name:         "run with failures",
			args:         []string{"run"},
			h:            handlers{run: func(context.Context, cmdRun, io.Writer, io.Writer) error { return errScenariosFailed }},
			expPanicCode: ptrTo(1),
		},
		{
			name: "models",
			args: []string{"models", "--profile", "mocked"},
			h: handlers{models: func(_ context.Context, c cmdModels, _, _ io.Writer) error {
				require.Equal(t, "mocked", c.Profile)
				require.Equal(t, "POST", c.Method)
				return nil
			}},
		},
		{
			name: "models with GET",
			args: []string{"models", "--method", "GET"},
			h: handlers{models: func(_ context.Context, c cmdModels, _, _ io.Writer) error {
				require.Equal(t, "GET", c.Method)
				return nil
			}},
		},
		{
			name: "serve",
			args: []string{"serve", "--port", "0", "--upstream", "https://api.openai.com/v1"},
			env:  map[string]string{"ONELLM_API_KEY": "from-env", "PROXYCHECK_UPSTREAM_API_KEY": "sk-up"},
			h: handlers{serve: func(_ context.Context, c cmdServe, _, _ io.Writer) error {
				require.Zero(t, c.Port)
				require.Equal(t, "from-env", c.APIKey)
				require.Equal(t, "https://api.openai.com/v1", c.Upstream)
				require.Equal(t, "sk-up", c.UpstreamAPIKey)
				// Recordings go to ./cassettes, not to the module source tree.
				wd, err := os.Getwd()
				require.NoError(t, err)
				require.Equal(t, filepath.Join(wd, "cassettes"), c.CassettesDir)
				return nil
			}},
		},
		{
			name:         "watch without schedule",
			args:         []string{"watch"},
			h:            handlers{watch: func(context.Context, cmdWatch, io.Writer, io.Writer) error { return nil }},
			expPanicCode: ptrTo(80),
		},
		{
			name: "watch",
			args: []string{"watch", "--schedule", "@every 5m", "--suite", "mocked"},
			h: handlers{watch: func(_ context.Context, c cmdWatch, _, _ io.Writer) error {
				require.Equal(t, "@every 5m", c.Schedule)
				require.Equal(t, "mocked", c.Suite)
				require.Equal(t, 1064, c.AdminPort)
				require.Equal(t, history.DefaultPath, c.History)
				return nil
			}},
		},
		{
			name: "history",
			args: []string{"history", "--limit", "5", "--format", "json"},
			h: handlers{history: func(_ context.Context, c cmdHistory, _, _ io.Writer) error {
				require.Equal(t, history.DefaultPath, c.History)
				require.Equal(t, 5, c.Limit)
				require.Equal(t, "json", c.Format)
				return nil
			}},
		},
		{
			name: "healthcheck",
			args: []string{"healthcheck"},
			h: handlers{healthcheck: func(_ context.Context, port int, _, _ io.Writer) error {
				require.Equal(t, 1064, port)
				return nil
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			out := &bytes.Buffer{}
			exitFn := func(code int) { panic(code) }
			if tt.expPanicCode != nil {
				require.PanicsWithValue(t, *tt.expPanicCode, func() {
					doMain(t.Context(), out, os.Stderr, tt.args, exitFn, tt.h)
				})
			} else {
				doMain(t.Context(), out, os.Stderr, tt.args, exitFn, tt.h)
			}
			if tt.expOutContains != "" {
				require.Contains(t, out.String(), tt.expOutContains)
			} else {
				require.Equal(t, tt.expOut, out.String())
			}
		})
	}
}

func TestCmdRun_Validate(t *testing.T) {
	require.NoError(t, (&cmdRun{SuiteFlags: SuiteFlags{Parallelism: 1}}).Validate())
	require.EqualError(t, (&cmdRun{}).Validate(), "parallelism must be at least 1")
	require.EqualError(t, (&cmdWatch{}).Validate(), "parallelism must be at least 1")
}

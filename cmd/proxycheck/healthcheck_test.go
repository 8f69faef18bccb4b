// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onellm/proxycheck/internal/schedule"
)

func Test_healthcheck(t *testing.T) {
	tests := []struct {
		name        string
		closeServer bool
		statusCode  int
		respBody    string
		expOut      string
		expErr      string
	}{
		{
			name:       "healthy",
			statusCode: http.StatusOK,
			respBody:   "OK\nlast run 01J: 6/6 passed\n",
			expOut:     "OK\nlast run 01J: 6/6 passed\n",
		},
		{
			name:       "no run yet",
			statusCode: http.StatusServiceUnavailable,
			respBody:   "no run completed yet",
			expErr:     "unhealthy: status 503, body: no run completed yet",
		},
		{
			name:        "connection failure",
			closeServer: true,
			expErr:      "failed to connect to admin server",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, schedule.HealthPath, r.URL.Path)
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.respBody))
			}))
			t.Cleanup(s.Close)

			u, err := url.Parse(s.URL)
			require.NoError(t, err)
			port, err := strconv.Atoi(u.Port())
			require.NoError(t, err)

			if tt.closeServer {
				s.Close()
			}

			stdout := &bytes.Buffer{}
			err = healthcheck(t.Context(), port, stdout, nil)

			if tt.expErr != "" {
				require.ErrorContains(t, err, tt.expErr)
				require.Empty(t, stdout.String())
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.expOut, stdout.String())
			}
		})
	}
}

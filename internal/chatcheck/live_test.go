// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

//go:build test_live

package chatcheck

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onellm/proxycheck/internal/config"
	internaltesting "github.com/onellm/proxycheck/internal/testing"
)

// TestLive runs the built-in suites against the targets configured in the
// environment. Deployed proxies answer nondeterministically, so failures
// are logged rather than failing the test; transport errors still fail it.
func TestLive(t *testing.T) {
	targets := internaltesting.RequireNewTargetsContext(t)
	for _, suite := range BuiltinSuites() {
		t.Run(suite.Name, func(t *testing.T) {
			required := internaltesting.RequiredTargetProxy
			if suite.Profile == config.ProfileMocked {
				required = internaltesting.RequiredTargetMocked
			}
			targets.MaybeSkip(t, required)

			r, err := NewRunner(targets.Target(suite.Profile), Options{Timeout: time.Minute})
			require.NoError(t, err)
			report, err := r.Run(t.Context(), suite)
			require.NoError(t, err)
			require.NoError(t, report.WriteText(os.Stdout))
			for _, res := range report.Results {
				if res.Err != "" {
					t.Errorf("%s: %s", res.Scenario, res.Err)
				}
			}
		})
	}
}

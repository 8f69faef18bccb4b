// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package internaltesting

import (
	"testing"

	"github.com/onellm/proxycheck/internal/config"
)

// RequiredTarget is a bit flag for the live targets a test needs.
type RequiredTarget byte

const (
	// RequiredTargetProxy is the bit flag for the deployed proxy.
	RequiredTargetProxy RequiredTarget = 1 << iota
	// RequiredTargetMocked is the bit flag for a local mocked proxy.
	RequiredTargetMocked
)

// TargetsContext holds the live targets resolved from the environment.
type TargetsContext struct {
	// ProxyValid and MockedValid are true if the target has both a base URL
	// and a key set explicitly.
	ProxyValid, MockedValid bool
	Proxy, Mocked           config.Target
}

// MaybeSkip skips the test if a required target is not configured.
func (c TargetsContext) MaybeSkip(t *testing.T, required RequiredTarget) {
	t.Helper()
	if required&RequiredTargetProxy != 0 && !c.ProxyValid {
		t.Skip("skipping test as the proxy target is not set in PROXY_OPENAI_API_KEY and PROXY_OPENAI_API_BASE")
	}
	if required&RequiredTargetMocked != 0 && !c.MockedValid {
		t.Skip("skipping test as the mocked target is not set in ONELLM_API_KEY")
	}
}

// Target returns the target for a profile name.
func (c TargetsContext) Target(profile string) config.Target {
	if profile == config.ProfileMocked {
		return c.Mocked
	}
	return c.Proxy
}

// RequireNewTargetsContext resolves the live targets from the environment,
// loading .env first.
func RequireNewTargetsContext(t *testing.T) (ctx TargetsContext) {
	t.Helper()
	if err := config.LoadDotEnv(); err != nil {
		t.Fatal(err)
	}
	var err error
	if ctx.Proxy, err = config.TargetFromEnv(config.ProfileProxy); err != nil {
		t.Fatal(err)
	}
	ctx.ProxyValid = ctx.Proxy.Configured() && ctx.Proxy.APIKey != ""

	if ctx.Mocked, err = config.TargetFromEnv(config.ProfileMocked); err != nil {
		t.Fatal(err)
	}
	// The mocked base URL has a local default, so only the key is required.
	ctx.MockedValid = ctx.Mocked.APIKey != ""
	return
}

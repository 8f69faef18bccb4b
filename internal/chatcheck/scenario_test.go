// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onellm/proxycheck/internal/config"
)

func TestBuiltinSuites(t *testing.T) {
	suites := BuiltinSuites()
	for _, s := range suites {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, s.Validate())
			_, err := config.LookupProfile(s.Profile)
			require.NoError(t, err)
		})
	}

	proxy, err := LookupSuite(suites, SuiteProxy)
	require.NoError(t, err)
	var names []string
	for _, sc := range proxy.Scenarios {
		names = append(names, sc.Name)
	}
	require.Equal(t, []string{
		"openai-chat-completion",
		"openai-stream-chat-completion",
		"claude2-chat-completion",
		"claude2-stream-chat-completion",
		"list-models",
		"reject-bad-key",
	}, names)

	_, err = LookupSuite(suites, "nope")
	require.EqualError(t, err, `unknown suite "nope", available: [proxy mocked]`)
}

func TestSuite_Validate(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "hi"}}
	tests := []struct {
		name   string
		suite  Suite
		expErr string
	}{
		{
			name:   "no name and no scenarios",
			suite:  Suite{},
			expErr: "suite has no name\nsuite \"\" has no scenarios",
		},
		{
			name: "duplicate scenario",
			suite: Suite{Name: "s", Scenarios: []Scenario{
				{Name: "a", Model: "m", Messages: msgs},
				{Name: "a", Model: "m", Messages: msgs},
			}},
			expErr: `suite "s": duplicate scenario "a"`,
		},
		{
			name:   "unnamed scenario",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Model: "m", Messages: msgs}}},
			expErr: `suite "s": scenario #0 has no name`,
		},
		{
			name:   "stream checks without stream",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Name: "a", Model: "m", Messages: msgs, Expect: Expect{LastFinishReason: "stop"}}}},
			expErr: "first/last chunk expectations need stream: true",
		},
		{
			name:   "models without expectation",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Name: "a", Kind: KindModels}}},
			expErr: "models scenario needs expect.models",
		},
		{
			name: "models with unknown method",
			suite: Suite{Name: "s", Scenarios: []Scenario{
				{Name: "a", Kind: KindModels, Method: "PUT", Expect: Expect{Models: []string{"gpt-4"}}},
			}},
			expErr: `suite "s": scenario "a": models scenario method must be GET or POST, got "PUT"`,
		},
		{
			name:   "method on a chat scenario",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Name: "a", Model: "m", Messages: msgs, Method: "POST"}}},
			expErr: `suite "s": scenario "a": method only applies to models scenarios`,
		},
		{
			name:   "status without expectation",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Name: "a", Kind: KindStatus, Model: "m", Messages: msgs}}},
			expErr: "status scenario needs expect.status",
		},
		{
			name:   "unknown kind",
			suite:  Suite{Name: "s", Scenarios: []Scenario{{Name: "a", Kind: "embeddings"}}},
			expErr: `unknown kind "embeddings"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorContains(t, tt.suite.Validate(), tt.expErr)
		})
	}

	t.Run("models scenario needs no model", func(t *testing.T) {
		s := Suite{Name: "s", Scenarios: []Scenario{
			{Name: "a", Kind: KindModels, Expect: Expect{Models: []string{"gpt-4"}}},
			{Name: "b", Kind: KindModels, Method: "POST", Expect: Expect{Models: []string{"gpt-4"}}},
		}}
		require.NoError(t, s.Validate())
	})
}

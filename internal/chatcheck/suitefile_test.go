// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const smokeSuites = `
suites:
  - name: smoke
    profile: mocked
    scenarios:
      - name: hello
        model: gpt-3.5-turbo
        stream: true
        temperature: 0
        messages: [{role: user, content: "Please repeat:Hello"}]
        expect: {contentPrefix: "Hello", firstChunkRole: assistant}
      - name: models
        kind: models
        method: POST
        expect:
          models: [gpt-4]
`

func TestParseSuites(t *testing.T) {
	suites, err := ParseSuites([]byte(smokeSuites))
	require.NoError(t, err)
	require.Len(t, suites, 1)
	s := suites[0]
	require.Equal(t, "smoke", s.Name)
	require.Equal(t, "mocked", s.Profile)
	require.Len(t, s.Scenarios, 2)

	hello := s.Scenarios[0]
	require.True(t, hello.Stream)
	require.NotNil(t, hello.Temperature)
	require.Zero(t, *hello.Temperature)
	require.Equal(t, []Message{{Role: RoleUser, Content: "Please repeat:Hello"}}, hello.Messages)
	require.Equal(t, Expect{ContentPrefix: "Hello", FirstChunkRole: "assistant"}, hello.Expect)
	require.Equal(t, KindModels, s.Scenarios[1].Kind)
	require.Equal(t, "POST", s.Scenarios[1].Method)
}

func TestParseSuites_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expErr string
	}{
		{name: "empty", input: "", expErr: "no suites defined"},
		{name: "no suites", input: "suites: []", expErr: "no suites defined"},
		{name: "unknown field", input: "suites:\n  - name: a\n    retries: 3\n", expErr: "field retries not found"},
		{
			name: "duplicate suite",
			input: `suites:
  - {name: a, scenarios: [{name: s, model: m, messages: [{role: user, content: x}]}]}
  - {name: a, scenarios: [{name: s, model: m, messages: [{role: user, content: x}]}]}`,
			expErr: `duplicate suite "a"`,
		},
		{
			name:   "invalid scenario",
			input:  `suites: [{name: a, scenarios: [{name: s, messages: [{role: robot, content: x}]}]}]`,
			expErr: "suite \"a\": scenario \"s\": model is required\nmessage #0: unknown role \"robot\"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSuites([]byte(tt.input))
			require.ErrorContains(t, err, tt.expErr)
		})
	}
}

func TestLoadSuites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suites.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smokeSuites), 0o600))
	suites, err := LoadSuites(path)
	require.NoError(t, err)
	require.Len(t, suites, 1)

	_, err = LoadSuites(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read suites file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("suites: []"), 0o600))
	_, err = LoadSuites(bad)
	require.EqualError(t, err, bad+": no suites defined")
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/onellm/proxycheck/internal/config"
)

const (
	// SuiteProxy checks a proxy fronting OpenAI and Anthropic models.
	SuiteProxy = "proxy"
	// SuiteMocked checks a local proxy answering with canned completions.
	SuiteMocked = "mocked"
)

var (
	helloPrompt  = []Message{{Role: RoleUser, Content: "Please say `Hello everyone, I am <your name here>.`"}}
	repeatPrompt = []Message{{Role: RoleUser, Content: "Please repeat:Hello everyone, I am Assistant."}}
)

func zero() *float64 {
	v := 0.0
	return &v
}

// BuiltinSuites returns the suites shipped with proxycheck.
func BuiltinSuites() []Suite {
	return []Suite{
		{
			Name:    SuiteProxy,
			Profile: config.ProfileProxy,
			Scenarios: []Scenario{
				{
					Name:        "openai-chat-completion",
					Model:       "gpt-3.5-turbo",
					Temperature: zero(),
					Messages:    helloPrompt,
					Expect: Expect{
						MinChoices:    1,
						ContentPrefix: "Hello everyone, I am",
					},
				},
				{
					Name:        "openai-stream-chat-completion",
					Model:       "gpt-3.5-turbo",
					Temperature: zero(),
					Messages:    helloPrompt,
					Stream:      true,
					Expect: Expect{
						MinChoices:             1,
						FirstChunkModelPrefix:  "gpt-3.5-turbo",
						FirstChunkIndexZero:    true,
						FirstChunkRole:         string(RoleAssistant),
						FirstChunkEmptyContent: true,
						LastFinishReason:       "stop",
						ContentPrefix:          "Hello everyone, I am",
					},
				},
				{
					Name:        "claude2-chat-completion",
					Model:       "claude-2",
					Temperature: zero(),
					Messages:    helloPrompt,
					Expect: Expect{
						MinChoices:           1,
						NonEmpty:             true,
						ContentEqualsTrimmed: "Hello everyone, I am Claude.",
					},
				},
				{
					// Claude streams carry content in the first chunk and may
					// end without finish_reason "stop", so those two checks are off.
					Name:        "claude2-stream-chat-completion",
					Model:       "claude-2",
					Temperature: zero(),
					Messages:    helloPrompt,
					Stream:      true,
					Expect: Expect{
						MinChoices:            1,
						FirstChunkModelPrefix: "claude-2",
						FirstChunkIndexZero:   true,
						FirstChunkRole:        string(RoleAssistant),
						ContentEqualsTrimmed:  "Hello everyone, I am Claude.",
					},
				},
				{
					Name:   "list-models",
					Kind:   KindModels,
					Method: http.MethodPost,
					Expect: Expect{Models: []string{"gpt-3.5-turbo", "claude-2"}},
				},
				{
					Name:     "reject-bad-key",
					Kind:     KindStatus,
					Model:    "gpt-3.5-turbo",
					Messages: helloPrompt,
					APIKey:   "proxycheck-invalid-key",
					Expect:   Expect{Status: http.StatusUnauthorized},
				},
			},
		},
		{
			Name:    SuiteMocked,
			Profile: config.ProfileMocked,
			Scenarios: []Scenario{
				{
					Name:        "openai-stream-chat-completion",
					Model:       "gpt-3.5-turbo",
					Temperature: zero(),
					Messages:    repeatPrompt,
					Stream:      true,
					Expect:      Expect{ContentEquals: "Hello ChatGPT."},
				},
			},
		},
	}
}

// LookupSuite finds name among suites.
func LookupSuite(suites []Suite, name string) (Suite, error) {
	i := slices.IndexFunc(suites, func(s Suite) bool { return s.Name == name })
	if i < 0 {
		names := make([]string, 0, len(suites))
		for _, s := range suites {
			names = append(names, s.Name)
		}
		return Suite{}, fmt.Errorf("unknown suite %q, available: %v", name, names)
	}
	return suites[i], nil
}

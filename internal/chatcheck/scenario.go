// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package chatcheck runs chat-completion conformance scenarios against an
// OpenAI-compatible proxy and reports which expectations held.
package chatcheck

import (
	"errors"
	"fmt"
	"net/http"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the prompt.
type Message struct {
	Role    Role   `yaml:"role" json:"role"`
	Content string `yaml:"content" json:"content"`
}

// Kind selects which endpoint a scenario exercises.
type Kind string

const (
	// KindChat posts to /chat/completions, streamed or not. It is the default.
	KindChat Kind = "chat"
	// KindModels lists /models, with Scenario.Method.
	KindModels Kind = "models"
	// KindStatus posts a chat completion expected to be rejected with Expect.Status.
	KindStatus Kind = "status"
)

// Scenario is a single request and the expectations on its reply.
type Scenario struct {
	Name        string    `yaml:"name" json:"name"`
	Kind        Kind      `yaml:"kind,omitempty" json:"kind,omitempty"`
	Model       string    `yaml:"model,omitempty" json:"model,omitempty"`
	Messages    []Message `yaml:"messages,omitempty" json:"messages,omitempty"`
	Temperature *float64  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Stream      bool      `yaml:"stream,omitempty" json:"stream,omitempty"`
	// Method is the HTTP method of a models scenario: GET, the OpenAI
	// default, or POST for proxies that only route POST.
	Method string `yaml:"method,omitempty" json:"method,omitempty"`
	// APIKey replaces the target key for this scenario only.
	APIKey string `yaml:"apiKey,omitempty" json:"-"`
	Expect Expect `yaml:"expect" json:"expect"`
}

// kind returns the effective kind.
func (s Scenario) kind() Kind {
	if s.Kind == "" {
		return KindChat
	}
	return s.Kind
}

// Expect lists the assertions applied to a reply. Zero values disable a check.
type Expect struct {
	// MinChoices is the minimum number of choices in the reply, or in the
	// first chunk of a stream.
	MinChoices int `yaml:"minChoices,omitempty" json:"minChoices,omitempty"`
	// ContentPrefix must prefix the (concatenated) content.
	ContentPrefix string `yaml:"contentPrefix,omitempty" json:"contentPrefix,omitempty"`
	// ContentEquals must equal the content exactly.
	ContentEquals string `yaml:"contentEquals,omitempty" json:"contentEquals,omitempty"`
	// ContentEqualsTrimmed must equal the content stripped of surrounding white space.
	ContentEqualsTrimmed string `yaml:"contentEqualsTrimmed,omitempty" json:"contentEqualsTrimmed,omitempty"`
	// NonEmpty requires some content.
	NonEmpty bool `yaml:"nonEmpty,omitempty" json:"nonEmpty,omitempty"`

	FirstChunkModelPrefix string `yaml:"firstChunkModelPrefix,omitempty" json:"firstChunkModelPrefix,omitempty"`
	FirstChunkIndexZero   bool   `yaml:"firstChunkIndexZero,omitempty" json:"firstChunkIndexZero,omitempty"`
	FirstChunkRole        string `yaml:"firstChunkRole,omitempty" json:"firstChunkRole,omitempty"`
	// FirstChunkEmptyContent requires the first delta to carry content set to "".
	FirstChunkEmptyContent bool `yaml:"firstChunkEmptyContent,omitempty" json:"firstChunkEmptyContent,omitempty"`
	// LastFinishReason is the finish_reason of the last chunk.
	LastFinishReason string `yaml:"lastFinishReason,omitempty" json:"lastFinishReason,omitempty"`

	// Models must all be listed by /models.
	Models []string `yaml:"models,omitempty" json:"models,omitempty"`
	// Status is the HTTP status a KindStatus request must fail with.
	Status int `yaml:"status,omitempty" json:"status,omitempty"`
}

// streamOnly reports whether e has checks that need a stream.
func (e Expect) streamOnly() bool {
	return e.FirstChunkModelPrefix != "" || e.FirstChunkIndexZero || e.FirstChunkRole != "" ||
		e.FirstChunkEmptyContent || e.LastFinishReason != ""
}

// Suite is an ordered set of scenarios bound to a target profile.
type Suite struct {
	Name      string     `yaml:"name" json:"name"`
	Profile   string     `yaml:"profile,omitempty" json:"profile,omitempty"`
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// Validate reports every problem in the suite.
func (s Suite) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("suite has no name"))
	}
	if len(s.Scenarios) == 0 {
		errs = append(errs, fmt.Errorf("suite %q has no scenarios", s.Name))
	}
	seen := make(map[string]struct{}, len(s.Scenarios))
	for i, sc := range s.Scenarios {
		if sc.Name == "" {
			errs = append(errs, fmt.Errorf("suite %q: scenario #%d has no name", s.Name, i))
		} else if _, dup := seen[sc.Name]; dup {
			errs = append(errs, fmt.Errorf("suite %q: duplicate scenario %q", s.Name, sc.Name))
		}
		seen[sc.Name] = struct{}{}
		if err := sc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("suite %q: scenario %q: %w", s.Name, sc.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s Scenario) validate() error {
	var errs []error
	switch s.kind() {
	case KindModels:
		if len(s.Expect.Models) == 0 {
			errs = append(errs, errors.New("models scenario needs expect.models"))
		}
		switch s.Method {
		case "", http.MethodGet, http.MethodPost:
		default:
			errs = append(errs, fmt.Errorf("models scenario method must be GET or POST, got %q", s.Method))
		}
		return errors.Join(errs...)
	case KindStatus:
		if s.Method != "" {
			errs = append(errs, errors.New("method only applies to models scenarios"))
		}
		if s.Expect.Status == 0 {
			errs = append(errs, errors.New("status scenario needs expect.status"))
		}
	case KindChat:
		if s.Method != "" {
			errs = append(errs, errors.New("method only applies to models scenarios"))
		}
		if !s.Stream && s.Expect.streamOnly() {
			errs = append(errs, errors.New("first/last chunk expectations need stream: true"))
		}
	default:
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	if s.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if len(s.Messages) == 0 {
		errs = append(errs, errors.New("at least one message is required"))
	}
	for i, m := range s.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			errs = append(errs, fmt.Errorf("message #%d: unknown role %q", i, m.Role))
		}
	}
	return errors.Join(errs...)
}

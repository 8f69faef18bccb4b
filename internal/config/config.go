// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config resolves the proxy under test from environment profiles.
package config

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ProfileProxy targets a deployed proxy that forwards to real providers.
	ProfileProxy = "proxy"
	// ProfileMocked targets a local proxy (wrangler dev on :8787 by default)
	// answering with canned completions.
	ProfileMocked = "mocked"
)

// Profile names the environment variables that describe one target.
type Profile struct {
	Name string
	// APIKeyEnv is the variable holding the proxy's bearer key.
	APIKeyEnv string
	// BaseURLEnv is the variable holding the OpenAI-style base URL, e.g. https://host/v1.
	BaseURLEnv string
	// DefaultBaseURL is used when BaseURLEnv is unset. Empty means no default.
	DefaultBaseURL string
}

var profiles = map[string]Profile{
	ProfileProxy: {
		Name:       ProfileProxy,
		APIKeyEnv:  "PROXY_OPENAI_API_KEY", // #nosec G101 - env var name
		BaseURLEnv: "PROXY_OPENAI_API_BASE",
	},
	ProfileMocked: {
		Name:           ProfileMocked,
		APIKeyEnv:      "ONELLM_API_KEY", // #nosec G101 - env var name
		BaseURLEnv:     "OPENAI_API_BASE",
		DefaultBaseURL: "http://127.0.0.1:8787/v1",
	},
}

// Profiles returns the known profile names in sorted order.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupProfile returns the profile registered under name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q, must be one of %s", name, strings.Join(Profiles(), ", "))
	}
	return p, nil
}

// Target is the proxy endpoint a run talks to.
type Target struct {
	Profile string
	BaseURL string
	APIKey  string
}

// Configured reports whether the target has somewhere to send requests.
func (t Target) Configured() bool { return t.BaseURL != "" }

// String renders the target without its key.
func (t Target) String() string {
	if t.Profile == "" {
		return t.BaseURL
	}
	return fmt.Sprintf("%s (%s)", t.BaseURL, t.Profile)
}

// WithOverrides replaces the base URL and key with the non-empty arguments.
func (t Target) WithOverrides(baseURL, apiKey string) Target {
	if baseURL != "" {
		t.BaseURL = NormalizeBaseURL(baseURL)
	}
	if apiKey != "" {
		t.APIKey = apiKey
	}
	return t
}

// TargetFromEnv resolves the target of the named profile from the process environment.
func TargetFromEnv(profile string) (Target, error) {
	p, err := LookupProfile(profile)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Profile: p.Name,
		BaseURL: NormalizeBaseURL(cmp.Or(os.Getenv(p.BaseURLEnv), p.DefaultBaseURL)),
		APIKey:  os.Getenv(p.APIKeyEnv),
	}, nil
}

// NormalizeBaseURL trims white space and guarantees a trailing slash, which
// the OpenAI client needs to resolve relative paths like "chat/completions".
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

// Validate checks the target is usable.
func (t Target) Validate() error {
	if !t.Configured() {
		if p, err := LookupProfile(t.Profile); err == nil {
			return fmt.Errorf("no base URL for profile %q: set %s or pass --base-url", p.Name, p.BaseURLEnv)
		}
		return errors.New("no base URL: pass --base-url")
	}
	u, err := url.Parse(t.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", t.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base URL %q: scheme must be http or https", t.BaseURL)
	}
	return nil
}

// LoadDotEnv loads variables from the given files (".env" when none given).
// Missing files are ignored and variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

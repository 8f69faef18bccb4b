// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// suiteFile is the top-level document of a --suites-file.
type suiteFile struct {
	Suites []Suite `yaml:"suites"`
}

// LoadSuites reads and validates suites from a YAML file.
func LoadSuites(path string) ([]Suite, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suites file: %w", err)
	}
	suites, err := ParseSuites(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suites, nil
}

// ParseSuites decodes suites from YAML, rejecting unknown fields.
func ParseSuites(raw []byte) ([]Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var f suiteFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no suites defined")
		}
		return nil, fmt.Errorf("failed to parse suites: %w", err)
	}
	if len(f.Suites) == 0 {
		return nil, errors.New("no suites defined")
	}

	var errs []error
	seen := make(map[string]struct{}, len(f.Suites))
	for _, s := range f.Suites {
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate suite %q", s.Name))
		}
		seen[s.Name] = struct{}{}
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return f.Suites, nil
}

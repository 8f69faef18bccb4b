// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testproxy

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/yaml.v3"
)

// Cassettes shipped with proxycheck. Each backs one built-in scenario.
const (
	CassetteOpenAIChat      = "openai-chat"
	CassetteOpenAIStreaming = "openai-chat-streaming"
	CassetteClaudeChat      = "claude-chat"
	CassetteClaudeStreaming = "claude-chat-streaming"
	CassetteMockedStreaming = "mocked-chat-streaming"
)

//go:embed cassettes
var cassettesFS embed.FS

// embeddedCassettes loads the embedded cassettes keyed by file name without
// extension. A broken cassette is a build defect, so it panics.
func embeddedCassettes() map[string]*cassette.Cassette {
	cassettes, err := loadCassettes(cassettesFS, "cassettes")
	if err != nil {
		panic(fmt.Sprintf("failed to load cassettes: %v", err))
	}
	return cassettes
}

// loadCassettes reads every YAML file under dir.
func loadCassettes(fsys fs.FS, dir string) (map[string]*cassette.Cassette, error) {
	cassettes := map[string]*cassette.Cassette{}
	err := fs.WalkDir(fsys, dir, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !strings.HasSuffix(p, ".yaml") {
			return nil
		}
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read file %s: %w", p, err)
		}
		var c cassette.Cassette
		if err := yaml.Unmarshal(content, &c); err != nil {
			return fmt.Errorf("unmarshal %s: %w", p, err)
		}
		name := strings.TrimSuffix(path.Base(p), ".yaml")
		c.Name = name
		cassettes[name] = &c
		return nil
	})
	return cassettes, err
}

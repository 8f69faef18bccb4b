// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package version reports the build version of proxycheck.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// Version is the raw `git describe --tags --long` output, set by the linker:
//
//	-ldflags "-X github.com/onellm/proxycheck/internal/version.Version=v0.3.0-2-gabc1234"
var Version string

// Describe is a parsed `git describe` label.
type Describe struct {
	Tag     string
	Commits int
	Sha     string
}

// String renders the label the way the CLI prints it.
func (d Describe) String() string {
	switch {
	case d == Describe{}:
		return "dev"
	case d.Commits != 0:
		return fmt.Sprintf("%s (%s, +%d)", d.Sha, d.Tag, d.Commits)
	default:
		return d.Tag
	}
}

// Current returns the version of the running binary. It falls back to the
// module version recorded by `go install` when the linker flag is unset.
func Current() string {
	if d := parseDescribe(Version); d != (Describe{}) {
		return d.String()
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Describe{}.String()
}

// parseDescribe splits "<tag>-<commits>-g<sha>". Tags may contain dashes, so
// the label is split from the right.
func parseDescribe(v string) Describe {
	parts := strings.Split(v, "-")
	if len(parts) < 3 {
		return Describe{}
	}
	l := len(parts)
	commits, err := strconv.Atoi(parts[l-2])
	if err != nil || !strings.HasPrefix(parts[l-1], "g") {
		return Describe{}
	}
	return Describe{
		Tag:     strings.Join(parts[:l-2], "-"),
		Commits: commits,
		Sha:     strings.TrimPrefix(parts[l-1], "g"),
	}
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
)

const noChunks = "no chunks received"

// Observation is what a scenario saw, in the form Check consumes.
type Observation struct {
	// Choices is the number of choices of the reply, or of the first chunk.
	Choices int
	// Content is the message content, or the concatenated stream content.
	Content string
	// Transcript is set for streamed replies.
	Transcript *Transcript
	// Models is set for model listings.
	Models []string
	// Status is the HTTP status of a status scenario.
	Status int
}

// Check applies every expectation and returns one message per failed check.
func Check(e Expect, o Observation) []string {
	var failures []string
	fail := func(format string, a ...any) {
		failures = append(failures, fmt.Sprintf(format, a...))
	}

	if e.MinChoices > 0 && o.Choices < e.MinChoices {
		fail("got %d choices, want at least %d", o.Choices, e.MinChoices)
	}
	if e.NonEmpty && o.Content == "" {
		fail("content is empty")
	}
	if e.ContentPrefix != "" && !strings.HasPrefix(o.Content, e.ContentPrefix) {
		fail("content %q does not start with %q", o.Content, e.ContentPrefix)
	}
	if e.ContentEquals != "" && o.Content != e.ContentEquals {
		fail("content %q, want %q", o.Content, e.ContentEquals)
	}
	if e.ContentEqualsTrimmed != "" && strings.TrimSpace(o.Content) != e.ContentEqualsTrimmed {
		fail("trimmed content %q, want %q", strings.TrimSpace(o.Content), e.ContentEqualsTrimmed)
	}

	if e.streamOnly() {
		failures = append(failures, checkChunks(e, o.Transcript)...)
	}

	for _, m := range e.Models {
		if !slices.Contains(o.Models, m) {
			fail("model %q not listed in %v", m, o.Models)
		}
	}
	if e.Status != 0 && o.Status != e.Status {
		fail("status %d, want %d", o.Status, e.Status)
	}
	return failures
}

// checkChunks applies the first and last chunk expectations.
func checkChunks(e Expect, t *Transcript) []string {
	if t == nil || len(t.Chunks) == 0 {
		return []string{noChunks}
	}
	var failures []string
	fail := func(format string, a ...any) {
		failures = append(failures, fmt.Sprintf(format, a...))
	}

	first := t.First()
	choice := first.Get("choices.0")
	if e.FirstChunkModelPrefix != "" {
		if model := first.Get("model").String(); !strings.HasPrefix(model, e.FirstChunkModelPrefix) {
			fail("first chunk model %q does not start with %q", model, e.FirstChunkModelPrefix)
		}
	}
	if e.FirstChunkIndexZero {
		if idx := choice.Get("index"); idx.Type != gjson.Number || idx.Int() != 0 {
			fail("first chunk choice index is %s, want 0", describe(idx))
		}
	}
	if e.FirstChunkRole != "" {
		if role := choice.Get("delta.role"); role.String() != e.FirstChunkRole {
			fail("first chunk delta role is %s, want %q", describe(role), e.FirstChunkRole)
		}
	}
	if e.FirstChunkEmptyContent {
		// An absent or null content is not the same as "".
		if c := choice.Get("delta.content"); c.Type != gjson.String || c.Str != "" {
			fail("first chunk delta content is %s, want \"\"", describe(c))
		}
	}
	if e.LastFinishReason != "" {
		if fr := t.Last().Get("choices.0.finish_reason"); fr.String() != e.LastFinishReason {
			fail("last chunk finish_reason is %s, want %q", describe(fr), e.LastFinishReason)
		}
	}
	return failures
}

// describe renders a JSON value for failure messages.
func describe(r gjson.Result) string {
	switch {
	case !r.Exists():
		return "missing"
	case r.Type == gjson.Null:
		return "null"
	case r.Type == gjson.String:
		return fmt.Sprintf("%q", r.Str)
	default:
		return r.Raw
	}
}

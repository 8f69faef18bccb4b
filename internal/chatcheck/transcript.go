// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Transcript is a streamed chat completion folded into one reply.
type Transcript struct {
	// Chunks is the raw JSON of every chunk, in arrival order.
	Chunks []string `json:"-"`

	ID      string `json:"id,omitempty"`
	Object  string `json:"object,omitempty"`
	Model   string `json:"model,omitempty"`
	Created int64  `json:"created,omitempty"`
	// Content concatenates choices[0].delta.content of every chunk. A chunk
	// without choices or without content contributes "".
	Content string `json:"content"`
	// FinishReason is choices[0].finish_reason of the last chunk.
	FinishReason string        `json:"finish_reason,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Usage        *Usage        `json:"usage,omitempty"`
}

// FunctionCall is a legacy function call assembled from delta fragments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is token accounting reported by the proxy.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Fold builds a Transcript from raw chunk payloads. It fails on the first
// payload that is not a JSON object.
func Fold(chunks []string) (*Transcript, error) {
	t := &Transcript{Chunks: chunks}
	var content, args strings.Builder
	var fnName string
	for i, raw := range chunks {
		if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
			return nil, fmt.Errorf("chunk #%d is not a JSON object: %q", i, truncate(raw, 200))
		}
		c := gjson.Parse(raw)
		if t.ID == "" {
			t.ID = c.Get("id").String()
		}
		if t.Object == "" {
			t.Object = c.Get("object").String()
		}
		if t.Model == "" {
			t.Model = c.Get("model").String()
		}
		if t.Created == 0 {
			t.Created = c.Get("created").Int()
		}

		delta := c.Get("choices.0.delta")
		content.WriteString(delta.Get("content").String())
		if fc := delta.Get("function_call"); fc.IsObject() {
			if fnName == "" {
				fnName = fc.Get("name").String()
			}
			args.WriteString(fc.Get("arguments").String())
		}

		if u := c.Get("usage"); u.IsObject() {
			t.Usage = &Usage{
				PromptTokens:     u.Get("prompt_tokens").Int(),
				CompletionTokens: u.Get("completion_tokens").Int(),
				TotalTokens:      u.Get("total_tokens").Int(),
			}
		}
	}
	t.Content = content.String()
	if fnName != "" || args.Len() > 0 {
		t.FunctionCall = &FunctionCall{Name: fnName, Arguments: args.String()}
	}
	if last := t.Last(); last.Exists() {
		t.FinishReason = last.Get("choices.0.finish_reason").String()
	}
	return t, nil
}

// First returns the first chunk, or a non-existent result when there is none.
func (t *Transcript) First() gjson.Result {
	if len(t.Chunks) == 0 {
		return gjson.Result{}
	}
	return gjson.Parse(t.Chunks[0])
}

// Last returns the last chunk, or a non-existent result when there is none.
func (t *Transcript) Last() gjson.Result {
	if len(t.Chunks) == 0 {
		return gjson.Result{}
	}
	return gjson.Parse(t.Chunks[len(t.Chunks)-1])
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testproxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// SSEEvent represents a Server-Sent Event.
type SSEEvent struct {
	Event string
	Data  string
	ID    string
	Retry string
}

// SSEReader reads Server-Sent Events from an io.Reader.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a new SSE reader.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEReader{scanner: scanner}
}

// ReadEvent reads the next SSE event. Multiple data lines are joined with
// "\n". It returns io.EOF once the stream is exhausted.
func (r *SSEReader) ReadEvent() (*SSEEvent, error) {
	event := &SSEEvent{}
	var data []string
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if len(data) > 0 || event.Event != "" {
				event.Data = strings.Join(data, "\n")
				return event, nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "retry:"):
			event.Retry = strings.TrimSpace(strings.TrimPrefix(line, "retry:"))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) > 0 || event.Event != "" {
		event.Data = strings.Join(data, "\n")
		return event, nil
	}
	return nil, io.EOF
}

// ReadChatCompletionStream reads chat completion chunks up to the [DONE]
// sentinel. It returns the raw JSON of each chunk and the concatenated
// choices[0].delta.content.
func ReadChatCompletionStream(r io.Reader) (chunks []string, content string, err error) {
	reader := NewSSEReader(r)
	var b strings.Builder
	for {
		event, err := reader.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to read SSE event: %w", err)
		}
		if event.Data == "[DONE]" {
			break
		}
		if !gjson.Valid(event.Data) {
			return nil, "", fmt.Errorf("chunk #%d is not valid JSON: %q", len(chunks), event.Data)
		}
		chunks = append(chunks, event.Data)
		b.WriteString(gjson.Get(event.Data, "choices.0.delta.content").String())
	}
	return chunks, b.String(), nil
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testReport() *Report {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return &Report{
		RunID:    "01HMZ8Q3K2V3S5T6W7X8Y9Z0AB",
		Suite:    "proxy",
		Target:   "http://127.0.0.1:8787/v1/",
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
		Results: []Result{
			{
				Scenario: "openai-stream-chat-completion", Model: "gpt-3.5-turbo", Stream: true, Passed: true,
				Content: "Hello ChatGPT.", Duration: 900 * time.Millisecond, TimeToFirstChunk: 200 * time.Millisecond, ChunkCount: 4,
			},
			{
				Scenario: "claude2-chat-completion", Model: "claude-2",
				Failures: []string{"content is empty"}, Duration: 400 * time.Millisecond,
			},
			{
				Scenario: "reject-bad-key", Model: "gpt-3.5-turbo",
				Err: "chat completion: connection refused", Duration: time.Millisecond,
			},
		},
	}
}

func TestReport_Failed(t *testing.T) {
	require.Equal(t, 2, testReport().Failed())
	require.Zero(t, (&Report{}).Failed())
}

func TestReport_WriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testReport().Write(&buf, FormatText))
	out := buf.String()
	require.Contains(t, out, `run 01HMZ8Q3K2V3S5T6W7X8Y9Z0AB: suite "proxy" against http://127.0.0.1:8787/v1/`)
	require.Contains(t, out, "PASS  openai-stream-chat-completion")
	require.Contains(t, out, "first chunk 200ms, 4 chunks")
	require.Contains(t, out, "FAIL  claude2-chat-completion")
	require.Contains(t, out, "      content is empty\n")
	require.Contains(t, out, "      error: chat completion: connection refused\n")
	require.Contains(t, out, `      content: "Hello ChatGPT."`)
	require.Contains(t, out, "1 passed, 2 failed in 1.5s\n")
}

func TestReport_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testReport().Write(&buf, FormatJSON))
	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, testReport(), &got)
	require.Contains(t, buf.String(), `"timeToFirstChunkNs": 200000000`)
}

func TestReport_UnknownFormat(t *testing.T) {
	require.EqualError(t, testReport().Write(&bytes.Buffer{}, "xml"), `unknown report format "xml"`)
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package chatcheck

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Result is the outcome of one scenario.
type Result struct {
	Scenario         string        `json:"scenario"`
	Model            string        `json:"model,omitempty"`
	Stream           bool          `json:"stream"`
	RequestID        string        `json:"requestId"`
	Passed           bool          `json:"passed"`
	Failures         []string      `json:"failures,omitempty"`
	Err              string        `json:"error,omitempty"`
	Content          string        `json:"content,omitempty"`
	Duration         time.Duration `json:"durationNs"`
	TimeToFirstChunk time.Duration `json:"timeToFirstChunkNs,omitempty"`
	ChunkCount       int           `json:"chunks,omitempty"`

	// Transcript is the folded stream, kept for callers that inspect chunks.
	Transcript *Transcript `json:"-"`
}

// Report is the outcome of one suite run.
type Report struct {
	RunID    string    `json:"runId"`
	Suite    string    `json:"suite"`
	Target   string    `json:"target"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Results  []Result  `json:"results"`
}

// Failed returns the number of results that did not pass.
func (r *Report) Failed() int {
	n := 0
	for i := range r.Results {
		if !r.Results[i].Passed {
			n++
		}
	}
	return n
}

// Output formats accepted by Report.Write.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Write renders the report in the given format.
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", FormatText:
		return r.WriteText(w)
	case FormatJSON:
		return r.WriteJSON(w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes one line per scenario followed by its diagnostics.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: suite %q against %s\n", r.RunID, r.Suite, r.Target)
	for _, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		mode := "chat"
		if res.Stream {
			mode = "stream"
		}
		fmt.Fprintf(&b, "%s  %-28s %-16s %-6s %8s", status, res.Scenario, res.Model, mode, res.Duration.Round(time.Millisecond))
		if res.TimeToFirstChunk > 0 {
			fmt.Fprintf(&b, "  first chunk %s, %d chunks", res.TimeToFirstChunk.Round(time.Millisecond), res.ChunkCount)
		}
		b.WriteByte('\n')
		if res.Err != "" {
			fmt.Fprintf(&b, "      error: %s\n", res.Err)
		}
		for _, f := range res.Failures {
			fmt.Fprintf(&b, "      %s\n", f)
		}
		if res.Content != "" {
			fmt.Fprintf(&b, "      content: %q\n", res.Content)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed in %s\n",
		len(r.Results)-r.Failed(), r.Failed(), r.Finished.Sub(r.Started).Round(time.Millisecond))
	_, err := io.WriteString(w, b.String())
	return err
}

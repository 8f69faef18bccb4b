// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testproxy

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

var (
	// requestHeadersToRedact are sensitive or ephemeral headers removed from recordings.
	requestHeadersToRedact = []string{
		"Authorization", CassetteNameHeader,
		"X-Request-Id", "X-Proxycheck-Run",
		"b3", "traceparent", "tracestate",
	}
	// responseHeadersToRedact are sensitive or ephemeral response headers.
	responseHeadersToRedact = []string{"Openai-Organization", "Set-Cookie", "X-Request-Id", "Cf-Ray"}

	// volatileFields change on every response and are pinned so recordings
	// are reproducible.
	volatileFields = map[string]any{
		"id":                 "chatcmpl-recorded",
		"created":            0,
		"system_fingerprint": "",
	}

	recorderOptions = []recorder.Option{
		// Replay existing interactions and record new episodes when no match is found.
		recorder.WithMode(recorder.ModeReplayWithNewEpisodes),
		recorder.WithMatcher(requestMatcher),
		recorder.WithHook(afterCaptureHook, recorder.AfterCaptureHook),
	}
)

// requestMatcher matches live requests with recorded ones the same way the
// replaying handler does.
func requestMatcher(httpReq *http.Request, cassReq cassette.Request) bool {
	var body []byte
	if httpReq.Body != nil {
		b, err := io.ReadAll(httpReq.Body)
		if err != nil {
			return false
		}
		body = b
		httpReq.Body = io.NopCloser(bytes.NewReader(b))
	}
	return matchRequest(httpReq.Method, httpReq.URL.Path, body, cassReq)
}

// afterCaptureHook removes secrets, decompresses responses and scrubs
// volatile fields before an interaction is saved.
func afterCaptureHook(i *cassette.Interaction) error {
	for _, header := range requestHeadersToRedact {
		i.Request.Headers.Del(header)
	}
	for _, header := range responseHeadersToRedact {
		i.Response.Headers.Del(header)
	}

	if slices.Contains(i.Response.Headers.Values("Content-Encoding"), "gzip") {
		reader, err := gzip.NewReader(strings.NewReader(i.Response.Body))
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("decompress response body: %w", err)
		}
		if err := reader.Close(); err != nil {
			return fmt.Errorf("close gzip reader: %w", err)
		}
		i.Response.Body = string(decompressed)
		i.Response.Headers.Del("Content-Encoding")
	}

	var err error
	if strings.HasPrefix(i.Response.Headers.Get("Content-Type"), "text/event-stream") {
		i.Response.Body, err = scrubSSE(i.Response.Body)
	} else {
		i.Response.Body, err = scrubJSON(i.Response.Body)
	}
	if err != nil {
		return err
	}
	i.Request.ContentLength = int64(len(i.Request.Body))
	i.Response.ContentLength = int64(len(i.Response.Body))
	return nil
}

// scrubJSON pins the volatile fields present in a JSON object. Other bodies
// are returned unchanged.
func scrubJSON(body string) (string, error) {
	if !gjson.Valid(body) {
		return body, nil
	}
	for _, path := range []string{"id", "created", "system_fingerprint"} {
		if !gjson.Get(body, path).Exists() {
			continue
		}
		var err error
		if body, err = sjson.Set(body, path, volatileFields[path]); err != nil {
			return "", fmt.Errorf("scrub %s: %w", path, err)
		}
	}
	return body, nil
}

// scrubSSE applies scrubJSON to the data of each event.
func scrubSSE(body string) (string, error) {
	events := splitSSEEvents(body)
	for n, event := range events {
		lines := strings.Split(event, "\n")
		for j, line := range lines {
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			scrubbed, err := scrubJSON(strings.TrimSpace(data))
			if err != nil {
				return "", err
			}
			lines[j] = "data: " + scrubbed
		}
		events[n] = strings.Join(lines, "\n")
	}
	return strings.Join(events, "\n\n") + "\n\n", nil
}

// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testproxy

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

const (
	// CassetteNameHeader names the cassette a recorded interaction is saved to.
	// Without it, recordings go to RecordedCassette.
	CassetteNameHeader = "X-Cassette-Name"
	// RecordedCassette is the default cassette for new recordings.
	RecordedCassette = "recorded"

	chatCompletionsPath = "/v1/chat/completions"
	modelsPath          = "/v1/models"
)

type cassetteHandler struct {
	logger         *log.Logger
	apiKey         string
	upstream       string
	upstreamAPIKey string
	cassettesDir   string

	mu        sync.RWMutex
	cassettes map[string]*cassette.Cassette
}

// ServeHTTP implements http.Handler the way the proxy worker routes requests:
// only POST reaches the routes, so GET /v1/models is refused like any other
// method.
func (h *cassetteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Printf("%s %s", r.Method, r.URL.Path)
	switch r.Method {
	case http.MethodOptions:
		writeCORS(w)
		return
	case http.MethodPost:
	default:
		http.Error(w, "Not Allowed", http.StatusForbidden)
		return
	}
	if !h.authorized(r) {
		writeUnauthorized(w)
		return
	}

	switch r.URL.Path {
	case modelsPath:
		writeModels(w)
	case chatCompletionsPath:
		h.serveChatCompletion(w, r)
	default:
		http.Error(w, "Not Found", http.StatusNotFound)
	}
}

func (h *cassetteHandler) authorized(r *http.Request) bool {
	return h.apiKey == "" || r.Header.Get("Authorization") == "Bearer "+h.apiKey
}

// writeUnauthorized answers in the OpenAI error format so clients surface
// the status as an API error.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = io.WriteString(w, `{"error":{"message":"Unauthorized","type":"invalid_request_error","param":null,"code":"invalid_api_key"}}`)
}

func writeCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusOK)
}

func (h *cassetteHandler) serveChatCompletion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logAndSendError(w, http.StatusInternalServerError, "Failed to read request body: %v", err)
		return
	}
	if !gjson.ValidBytes(body) {
		h.logAndSendError(w, http.StatusBadRequest, "Request body is not valid JSON")
		return
	}

	if interaction, name := h.lookup(r.Method, r.URL.Path, body); interaction != nil {
		h.logger.Printf("replaying %s", name)
		writeResponse(w, interaction)
		return
	}

	if h.upstream == "" {
		h.logAndSendError(w, http.StatusConflict,
			"No cassette interaction matches %s %s. To record one, run `proxycheck serve --upstream <base-url>` with PROXYCHECK_UPSTREAM_API_KEY set.\n%s",
			r.Method, r.URL.Path, formatRequestDetails(r, body))
		return
	}
	name := cmp.Or(r.Header.Get(CassetteNameHeader), RecordedCassette)
	if err := h.recordNewInteraction(r, body, w, name); err != nil {
		h.logAndSendError(w, http.StatusBadGateway, "Failed to record interaction: %v", err)
	}
}

// lookup returns the first interaction matching the request, trying
// cassettes in name order.
func (h *cassetteHandler) lookup(method, path string, body []byte) (*cassette.Interaction, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, name := range slices.Sorted(maps.Keys(h.cassettes)) {
		for _, interaction := range h.cassettes[name].Interactions {
			if matchRequest(method, path, body, interaction.Request) {
				return interaction, name
			}
		}
	}
	return nil, ""
}

func (h *cassetteHandler) logAndSendError(w http.ResponseWriter, code int, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	h.logger.Println(msg)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Testproxy-Error", "true")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, "Testproxy Error: "+msg+"\n")
}

// formatRequestDetails describes the request fields used for matching, to
// make it easier to see why no interaction matched.
func formatRequestDetails(r *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString("\n--- Actual Request Details ---\n")
	b.WriteString("Method:   " + r.Method + "\n")
	b.WriteString("Path:     " + r.URL.Path + "\n")
	b.WriteString("Model:    " + gjson.GetBytes(body, "model").String() + "\n")
	b.WriteString("Stream:   " + strconv.FormatBool(gjson.GetBytes(body, "stream").Bool()) + "\n")
	b.WriteString("Messages:\n")
	gjson.GetBytes(body, "messages").ForEach(func(_, m gjson.Result) bool {
		b.WriteString("  " + m.Get("role").String() + ": " + strconv.Quote(m.Get("content").String()) + "\n")
		return true
	})
	b.WriteString("--- End Request Details ---\n")
	return b.String()
}

// recordNewInteraction forwards the request upstream through a recorder,
// copies the response to the client and makes the new interaction available
// for replay.
func (h *cassetteHandler) recordNewInteraction(r *http.Request, body []byte, w http.ResponseWriter, cassetteName string) (err error) {
	if err = os.MkdirAll(h.cassettesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create cassettes directory: %w", err)
	}
	// The recorder adds the .yaml extension.
	cassettePath := filepath.Join(h.cassettesDir, cassetteName)
	rec, err := recorder.New(cassettePath, recorderOptions...)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}

	targetURL := h.upstream + strings.TrimPrefix(r.URL.Path, "/v1")
	req, err := http.NewRequestWithContext(context.Background(), r.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		_ = rec.Stop()
		return fmt.Errorf("failed to create request: %w", err)
	}
	for _, k := range []string{"Content-Type", "Accept", "User-Agent"} {
		if v := r.Header.Get(k); v != "" {
			req.Header.Set(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+h.upstreamAPIKey)

	client := &http.Client{Transport: rec, Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		_ = rec.Stop()
		return fmt.Errorf("failed to execute request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		_ = rec.Stop()
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err = rec.Stop(); err != nil {
		return fmt.Errorf("failed to stop recorder: %w", err)
	}

	maps.Copy(w.Header(), resp.Header)
	w.Header().Del("Content-Length")
	w.Header().Del("Content-Encoding")
	w.WriteHeader(resp.StatusCode)
	if _, err = w.Write(respBody); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	c, err := cassette.Load(cassettePath)
	if err != nil {
		return fmt.Errorf("failed to reload %s: %w", cassettePath, err)
	}
	h.mu.Lock()
	h.cassettes[cassetteName] = c
	h.mu.Unlock()
	h.logger.Printf("recorded %s %s into %s.yaml", r.Method, r.URL.Path, cassettePath)
	return nil
}

// writeResponse plays back a cassette interaction.
func writeResponse(w http.ResponseWriter, interaction *cassette.Interaction) {
	for key, values := range interaction.Response.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(interaction.Response.Code)

	// Simulate a quite fast time to first chunk.
	time.Sleep(2 * time.Millisecond)

	if strings.HasPrefix(interaction.Response.Headers.Get("Content-Type"), "text/event-stream") {
		writeSSEResponse(w, interaction.Response.Body)
	} else {
		_, _ = io.WriteString(w, interaction.Response.Body)
	}
}

// writeSSEResponse writes SSE events, flushing after each one.
func writeSSEResponse(w http.ResponseWriter, body string) {
	flusher, _ := w.(http.Flusher) // Safe because we use http.Server.
	for _, event := range splitSSEEvents(body) {
		_, _ = io.WriteString(w, event+"\n\n")
		time.Sleep(time.Millisecond)
		flusher.Flush()
	}
}

// splitSSEEvents splits an SSE body on blank lines, dropping empty events.
func splitSSEEvents(body string) []string {
	var events []string
	for _, e := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if e = strings.Trim(e, "\n"); e != "" {
			events = append(events, e)
		}
	}
	return events
}

// matchRequest reports whether the request matches a recorded one by
// method, path, model, stream flag and message list. Other body fields such
// as temperature are ignored, since clients serialize them differently.
func matchRequest(method, path string, body []byte, i cassette.Request) bool {
	if method != i.Method {
		return false
	}
	u, err := url.Parse(i.URL)
	if err != nil || !samePath(path, u.Path) {
		return false
	}
	live, recorded := gjson.ParseBytes(body), gjson.Parse(i.Body)
	if live.Get("model").String() != recorded.Get("model").String() {
		return false
	}
	if live.Get("stream").Bool() != recorded.Get("stream").Bool() {
		return false
	}
	return slices.Equal(messageKeys(live), messageKeys(recorded))
}

// samePath compares paths ignoring a /v1 prefix, which upstream base URLs
// may or may not include.
func samePath(live, recorded string) bool {
	return strings.TrimPrefix(live, "/v1") == strings.TrimPrefix(recorded, "/v1")
}

func messageKeys(body gjson.Result) []string {
	var keys []string
	body.Get("messages").ForEach(func(_, m gjson.Result) bool {
		keys = append(keys, m.Get("role").String()+"\x00"+m.Get("content").String())
		return true
	})
	return keys
}

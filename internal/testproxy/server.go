// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package testproxy provides a fake OpenAI-compatible proxy for testing.
// It replays pre-recorded chat completions from cassettes so suites can run
// without a deployed proxy or provider credentials.
package testproxy

import (
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
)

// DefaultAPIKey is the key the fake proxy accepts when none is configured
// through Config.
const DefaultAPIKey = "proxycheck-test-key" // #nosec G101 - fixed key of a local fake

// Config configures a Server.
type Config struct {
	// Port to listen on. Zero picks a random port on 127.0.0.1.
	Port int
	// APIKey is the bearer token required on requests. Empty disables auth.
	APIKey string
	// Upstream is the base URL of a real proxy or provider, for example
	// https://api.openai.com/v1. When set, unmatched requests are forwarded
	// and recorded.
	Upstream string
	// UpstreamAPIKey authorizes forwarded requests.
	UpstreamAPIKey string
	// CassettesDir holds recordings. Cassettes found there are served, and
	// new recordings are written there. Empty serves the embedded cassettes
	// only, and is rejected when Upstream is set.
	CassettesDir string
}

// Server is a fake OpenAI-compatible proxy replaying cassettes.
type Server struct {
	logger   *log.Logger
	server   *http.Server
	listener net.Listener
	handler  *cassetteHandler
}

// NewServer starts a fake proxy serving the embedded cassettes and those
// previously recorded into cfg.CassettesDir, which win on name clashes.
func NewServer(out io.Writer, cfg Config) (*Server, error) {
	if cfg.CassettesDir == "" && cfg.Upstream != "" {
		return nil, errors.New("recording from an upstream needs a cassettes directory")
	}
	cassettes := embeddedCassettes()
	if cfg.CassettesDir == "" {
		return newServer(out, cfg, cassettes)
	}
	if info, err := os.Stat(cfg.CassettesDir); err == nil && info.IsDir() {
		recorded, err := loadCassettes(os.DirFS(cfg.CassettesDir), ".")
		if err != nil {
			return nil, fmt.Errorf("failed to load cassettes from %s: %w", cfg.CassettesDir, err)
		}
		maps.Copy(cassettes, recorded)
	}
	return newServer(out, cfg, cassettes)
}

// newServer starts a fake proxy serving the given cassettes, keyed by name.
func newServer(out io.Writer, cfg Config, cassettes map[string]*cassette.Cassette) (*Server, error) {
	logger := log.New(out, "[testproxy] ", 0)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	if cfg.Port != 0 {
		// A fixed port is the `serve` command, reachable from containers.
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	listener, err := net.Listen("tcp", addr) // #nosec G102
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	handler := &cassetteHandler{
		logger:         logger,
		apiKey:         cfg.APIKey,
		upstream:       strings.TrimSuffix(cfg.Upstream, "/"),
		upstreamAPIKey: cfg.UpstreamAPIKey,
		cassettes:      cassettes,
		cassettesDir:   cfg.CassettesDir,
	}
	s := &Server{
		logger:   logger,
		listener: listener,
		handler:  handler,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second, // G112: Prevent Slowloris attacks.
		},
	}
	go func() {
		_ = s.server.Serve(listener)
	}()
	logger.Printf("serving %d cassettes on %s", len(cassettes), listener.Addr())
	return s, nil
}

// URL returns the OpenAI base URL of the server, ending in /v1.
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/v1", s.Port())
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close shuts down the server.
func (s *Server) Close() {
	_ = s.server.Close()
}


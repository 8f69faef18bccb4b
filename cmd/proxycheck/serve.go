// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/onellm/proxycheck/internal/testproxy"
)

// serve runs the fake proxy until ctx is done.
func serve(ctx context.Context, c cmdServe, stdout, _ io.Writer) error {
	s, err := testproxy.NewServer(stdout, testproxy.Config{
		Port:           c.Port,
		APIKey:         c.APIKey,
		Upstream:       c.Upstream,
		UpstreamAPIKey: c.UpstreamAPIKey,
		CassettesDir:   c.CassettesDir,
	})
	if err != nil {
		return fmt.Errorf("failed to start fake proxy: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "serving chat completions on %s\n", s.URL())
	<-ctx.Done()
	s.Close()
	return nil
}

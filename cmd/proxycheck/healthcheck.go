// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/onellm/proxycheck/internal/schedule"
)

// healthcheck queries the admin server of a local watcher, for use as a Docker HEALTHCHECK.
func healthcheck(ctx context.Context, port int, stdout, _ io.Writer) error {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%d%s", port, schedule.HealthPath), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to admin server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d, body: %s", resp.StatusCode, body)
	}
	_, _ = stdout.Write(body)
	return nil
}

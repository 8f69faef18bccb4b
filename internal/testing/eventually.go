// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package internaltesting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Poll calls check every tick until it returns nil or ctx is done. When ctx
// ends first, the last check error is returned joined with ctx.Err().
func Poll(ctx context.Context, tick time.Duration, check func(ctx context.Context) error) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		err := check(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RequireHealthy polls a health endpoint until it answers 200 with a body
// containing want, and returns that body. It fails t after waitFor.
func RequireHealthy(t testing.TB, url, want string, waitFor time.Duration) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()

	var body []byte
	err := Poll(ctx, 50*time.Millisecond, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if body, err = io.ReadAll(resp.Body); err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		if !bytes.Contains(body, []byte(want)) {
			return fmt.Errorf("body %q does not contain %q", body, want)
		}
		return nil
	})
	require.NoError(t, err, "%s never became healthy", url)
	return body
}

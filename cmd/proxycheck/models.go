// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/onellm/proxycheck/internal/chatcheck"
)

// models prints the model IDs served by the target, one per line.
func models(ctx context.Context, c cmdModels, stdout, stderr io.Writer) error {
	target, err := resolveTarget(c.TargetFlags, "")
	if err != nil {
		return err
	}
	r, err := chatcheck.NewRunner(target, chatcheck.Options{
		Logger:  newLogger(stderr, c.Debug),
		Timeout: c.Timeout,
	})
	if err != nil {
		return err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	ids, err := r.Models(ctx, c.Method)
	if err != nil {
		return fmt.Errorf("failed to list models of %s: %w", target, err)
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(stdout, id)
	}
	return nil
}

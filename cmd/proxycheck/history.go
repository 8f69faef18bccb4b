// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/onellm/proxycheck/internal/chatcheck"
	"github.com/onellm/proxycheck/internal/history"
)

// showHistory prints the most recent results, newest first.
func showHistory(ctx context.Context, c cmdHistory, stdout, _ io.Writer) error {
	store, err := history.Open(ctx, c.History)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rows, err := store.Recent(ctx, c.Limit)
	if err != nil {
		return err
	}
	if c.Format == chatcheck.FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TIME\tRUN\tSUITE\tSCENARIO\tRESULT\tDURATION")
	for _, row := range rows {
		result := "PASS"
		if !row.Passed {
			result = "FAIL"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.CreatedAt.Local().Format(time.DateTime), row.RunID, row.Suite, row.Scenario,
			result, row.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}

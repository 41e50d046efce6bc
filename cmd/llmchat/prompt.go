// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bureau-foundation/llmchat/lib/cli"
	"github.com/bureau-foundation/llmchat/lib/exchange"
)

// newHTTPClient returns the client for provider requests. A zero
// timeout uses the default client.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		return http.DefaultClient
	}
	return &http.Client{Timeout: timeout}
}

// streamReply runs one exchange with an empty history and writes the
// reply to stdout as it grows. A failed exchange writes its error turn
// to stderr and returns an ExitError with code 1.
func streamReply(ctx context.Context, orchestrator *exchange.Orchestrator, message string, stdout, stderr io.Writer) error {
	run := orchestrator.Start(ctx, message, nil)

	var printed string
	var failure string
	for snapshot := range run.Snapshots() {
		last, _ := snapshot.Last()
		if run.State() == exchange.StateFailed {
			failure = last.Content
			continue
		}
		// Each snapshot extends the previous reply.
		if _, err := io.WriteString(stdout, last.Content[len(printed):]); err != nil {
			return cli.Internal("writing reply: %w", err)
		}
		printed = last.Content
	}

	if printed != "" && !strings.HasSuffix(printed, "\n") {
		fmt.Fprintln(stdout)
	}
	if run.State() == exchange.StateFailed {
		fmt.Fprintln(stderr, failure)
		return &cli.ExitError{Code: 1}
	}
	return nil
}

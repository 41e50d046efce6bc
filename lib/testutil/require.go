// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"iter"
	"time"

	"github.com/bureau-foundation/llmchat/lib/turn"
)

// TB is the part of testing.TB the helpers need. Tests of the helpers
// themselves substitute a recorder.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// ch is closed or nothing arrives within timeout. waitingFor names the
// expected value in the failure message.
//
//	message := testutil.RequireReceive(t, messages, 5*time.Second, "exchange done")
func RequireReceive[V any](t TB, ch <-chan V, timeout time.Duration, waitingFor string) V {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", waitingFor)
		}
		return value
	case <-timer.C:
		t.Fatalf("timed out after %v waiting for %s", timeout, waitingFor)
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver a value) within
// timeout. Provider fakes close a channel when their stream is
// released; servers close one when ready.
func RequireClosed(t TB, ch <-chan struct{}, timeout time.Duration, waitingFor string) {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("timed out after %v waiting for %s to close", timeout, waitingFor)
	}
}

// CollectSnapshots ranges snapshots to completion on another goroutine
// and returns every snapshot in order. The test fails if the sequence
// has not ended within timeout, which is how a stream that never
// settles shows up.
func CollectSnapshots(t TB, snapshots iter.Seq[turn.History], timeout time.Duration) []turn.History {
	t.Helper()
	collected := make(chan []turn.History, 1)
	go func() {
		var all []turn.History
		for snapshot := range snapshots {
			all = append(all, snapshot)
		}
		collected <- all
	}()
	return RequireReceive(t, collected, timeout, "snapshot sequence to end")
}

// ReplyContents returns the content of the final turn of each
// snapshot: the reply as it grew.
func ReplyContents(snapshots []turn.History) []string {
	contents := make([]string, len(snapshots))
	for index, snapshot := range snapshots {
		last, _ := snapshot.Last()
		contents[index] = last.Content
	}
	return contents
}

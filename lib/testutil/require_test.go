// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/llmchat/lib/turn"
)

// fatalRecorder captures Fatalf instead of stopping the test. Fatalf
// panics to unwind the helper the way runtime.Goexit would.
type fatalRecorder struct {
	message string
}

type fatalSignal struct{}

func (recorder *fatalRecorder) Helper() {}

func (recorder *fatalRecorder) Fatalf(format string, args ...any) {
	recorder.message = fmt.Sprintf(format, args...)
	panic(fatalSignal{})
}

// capture runs f and returns the Fatalf message, or "" if f returned
// normally.
func capture(f func(recorder *fatalRecorder)) (message string) {
	recorder := &fatalRecorder{}
	defer func() {
		if recovered := recover(); recovered != nil {
			if _, ok := recovered.(fatalSignal); !ok {
				panic(recovered)
			}
			message = recorder.message
		}
	}()
	f(recorder)
	return ""
}

func TestRequireReceive(t *testing.T) {
	t.Parallel()

	channel := make(chan string, 1)
	channel <- "snapshot"
	if got := RequireReceive(t, channel, time.Second, "snapshot"); got != "snapshot" {
		t.Errorf("RequireReceive = %q, want %q", got, "snapshot")
	}
}

func TestRequireReceiveFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		channel func() chan int
		want    string
	}{
		{
			name:    "timeout",
			channel: func() chan int { return make(chan int) },
			want:    "timed out after 10ms waiting for exchange done",
		},
		{
			name: "closed",
			channel: func() chan int {
				channel := make(chan int)
				close(channel)
				return channel
			},
			want: "channel closed while waiting for exchange done",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			channel := test.channel()
			message := capture(func(recorder *fatalRecorder) {
				RequireReceive(recorder, channel, 10*time.Millisecond, "exchange done")
			})
			if message != test.want {
				t.Errorf("Fatalf message = %q, want %q", message, test.want)
			}
		})
	}
}

func TestRequireClosed(t *testing.T) {
	t.Parallel()

	closed := make(chan struct{})
	close(closed)
	RequireClosed(t, closed, time.Second, "released stream")

	message := capture(func(recorder *fatalRecorder) {
		RequireClosed(recorder, make(chan struct{}), 10*time.Millisecond, "provider stream")
	})
	if message != "timed out after 10ms waiting for provider stream to close" {
		t.Errorf("Fatalf message = %q", message)
	}
}

func TestCollectSnapshots(t *testing.T) {
	t.Parallel()

	snapshots := CollectSnapshots(t, slices.Values([]turn.History{
		{turn.User("Hi"), turn.Assistant("Hel")},
		{turn.User("Hi"), turn.Assistant("Hello!")},
	}), time.Second)

	if got := ReplyContents(snapshots); !slices.Equal(got, []string{"Hel", "Hello!"}) {
		t.Errorf("ReplyContents = %q, want [Hel Hello!]", got)
	}
}

func TestCollectSnapshotsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	stalled := func(yield func(turn.History) bool) {
		if !yield(turn.History{turn.User("Hi"), turn.Assistant("Hel")}) {
			return
		}
		<-release
	}

	message := capture(func(recorder *fatalRecorder) {
		CollectSnapshots(recorder, stalled, 10*time.Millisecond)
	})
	if message != "timed out after 10ms waiting for snapshot sequence to end" {
		t.Errorf("Fatalf message = %q", message)
	}
}

func TestReplyContentsEmptyHistory(t *testing.T) {
	t.Parallel()

	if got := ReplyContents([]turn.History{nil}); !slices.Equal(got, []string{""}) {
		t.Errorf("ReplyContents = %q, want one empty reply", got)
	}
}

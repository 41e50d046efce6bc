// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"iter"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/llmchat/lib/testutil"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// collect ranges seq to completion and returns every snapshot.
func collect(t *testing.T, seq iter.Seq[turn.History]) []turn.History {
	t.Helper()
	return testutil.CollectSnapshots(t, seq, 5*time.Second)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fragments []string
		want      []string
	}{
		{name: "no fragments", fragments: nil, want: []string{}},
		{name: "only empty fragments", fragments: []string{"", ""}, want: []string{}},
		{name: "single", fragments: []string{"Hello"}, want: []string{"Hello"}},
		{name: "split", fragments: []string{"Hel", "lo!"}, want: []string{"Hel", "Hello!"}},
		{
			name:      "empty fragments skipped",
			fragments: []string{"", "a", "", "bc", "", "d", ""},
			want:      []string{"a", "abc", "abcd"},
		},
		{
			name:      "whitespace is not empty",
			fragments: []string{"a", " ", "\n", "b"},
			want:      []string{"a", "a ", "a \n", "a \nb"},
		},
		{
			name:      "no reordering",
			fragments: []string{"3", "1", "2"},
			want:      []string{"3", "31", "312"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			history := turn.History{turn.User("A"), turn.Assistant("B")}
			snapshots := collect(t, Aggregate(slices.Values(test.fragments), "Q", history))

			got := testutil.ReplyContents(snapshots)
			if !slices.Equal(got, test.want) {
				t.Fatalf("contents = %q, want %q", got, test.want)
			}

			for index, snapshot := range snapshots {
				if len(snapshot) != len(history)+2 {
					t.Fatalf("snapshot %d has %d turns, want %d", index, len(snapshot), len(history)+2)
				}
				if !slices.Equal(snapshot[:len(history)], history) {
					t.Errorf("snapshot %d prefix = %+v, want history", index, snapshot[:len(history)])
				}
				if snapshot[len(history)] != turn.User("Q") {
					t.Errorf("snapshot %d user turn = %+v", index, snapshot[len(history)])
				}
				if snapshot[len(history)+1].Role != turn.RoleAssistant {
					t.Errorf("snapshot %d last role = %q", index, snapshot[len(history)+1].Role)
				}
			}

			if len(snapshots) > 0 {
				last, _ := snapshots[len(snapshots)-1].Last()
				if last.Content != strings.Join(test.fragments, "") {
					t.Errorf("final content = %q, want concatenation %q", last.Content, strings.Join(test.fragments, ""))
				}
			}
		})
	}
}

func TestAggregateSnapshotsAreIndependent(t *testing.T) {
	t.Parallel()

	history := make(turn.History, 1, 8)
	history[0] = turn.User("A")

	snapshots := collect(t, Aggregate(slices.Values([]string{"x", "y"}), "Q", history))
	if len(snapshots) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snapshots))
	}

	snapshots[0][0] = turn.User("mutated")
	snapshots[0][2] = turn.Assistant("mutated")

	if history[0].Content != "A" {
		t.Errorf("history mutated through snapshot: %+v", history)
	}
	if snapshots[1][0].Content != "A" || snapshots[1][2].Content != "xy" {
		t.Errorf("later snapshot affected by mutation: %+v", snapshots[1])
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
}

func TestAggregateStopsPullingOnBreak(t *testing.T) {
	t.Parallel()

	var pulled int
	fragments := func(yield func(string) bool) {
		for _, fragment := range []string{"a", "b", "c", "d"} {
			pulled++
			if !yield(fragment) {
				return
			}
		}
	}

	var seen int
	for range Aggregate(fragments, "Q", nil) {
		seen++
		if seen == 2 {
			break
		}
	}
	if pulled != 2 {
		t.Errorf("pulled %d fragments after break at 2, want 2", pulled)
	}
}

func TestAggregateNilHistory(t *testing.T) {
	t.Parallel()

	snapshots := collect(t, Aggregate(slices.Values([]string{"ok"}), "Hi", nil))
	want := turn.History{turn.User("Hi"), turn.Assistant("ok")}
	if len(snapshots) != 1 || !slices.Equal(snapshots[0], want) {
		t.Errorf("snapshots = %+v, want [%+v]", snapshots, want)
	}
}

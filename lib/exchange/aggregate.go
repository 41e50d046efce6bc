// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"iter"
	"strings"

	"github.com/bureau-foundation/llmchat/lib/turn"
)

// Aggregate folds a sequence of reply fragments into History
// snapshots. After each non-empty fragment it yields
//
//	history + [user(message), assistant(accumulated)]
//
// where accumulated is the concatenation of every fragment received so
// far, in arrival order. Empty fragments are skipped without yielding,
// so the assistant content grows strictly across snapshots. The
// sequence ends when fragments ends. A source that yields nothing
// produces no snapshots; deciding what to show in that case is the
// caller's concern.
//
// Each snapshot is freshly allocated: it shares no storage with
// history or with any other snapshot.
//
// The fragment source is consumed as it is ranged; ranging the result
// a second time ranges fragments a second time.
func Aggregate(fragments iter.Seq[string], message string, history turn.History) iter.Seq[turn.History] {
	return func(yield func(turn.History) bool) {
		prefix := history.Append(turn.User(message))
		var accumulated strings.Builder
		for fragment := range fragments {
			if fragment == "" {
				continue
			}
			accumulated.WriteString(fragment)
			if !yield(prefix.Append(turn.Assistant(accumulated.String()))) {
				return
			}
		}
	}
}

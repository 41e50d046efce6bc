// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package turn

import "fmt"

// Role identifies the speaker of a Turn.
type Role string

const (
	// RoleSystem carries configuration-supplied instructions. Only
	// ever appears as the first turn of a provider context.
	RoleSystem Role = "system"

	// RoleUser is text typed by the person chatting.
	RoleUser Role = "user"

	// RoleAssistant is text produced by the model, including error
	// turns substituted for a failed exchange.
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the three known roles.
func (role Role) Valid() bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Turn is one conversational unit.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system turn.
func System(content string) Turn { return Turn{Role: RoleSystem, Content: content} }

// User returns a user turn.
func User(content string) Turn { return Turn{Role: RoleUser, Content: content} }

// Assistant returns an assistant turn.
func Assistant(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Validate returns an error if the turn's role is outside the closed
// set. Used at trust boundaries where turns arrive from outside the
// process (the web surface decodes History from request bodies).
func (t Turn) Validate() error {
	if !t.Role.Valid() {
		return fmt.Errorf("turn: unknown role %q", t.Role)
	}
	return nil
}

// History is an ordered sequence of finalized turns, oldest first.
// Alternation between user and assistant turns is conventional, not
// enforced.
type History []Turn

// Clone returns a copy that shares no storage with history. A nil
// history clones to an empty, non-nil history so that JSON encoding
// produces [] rather than null.
func (history History) Clone() History {
	clone := make(History, len(history))
	copy(clone, history)
	return clone
}

// Append returns a new history containing history followed by turns.
// Unlike the builtin append, the result never aliases history's
// backing array, even when history has spare capacity.
func (history History) Append(turns ...Turn) History {
	result := make(History, 0, len(history)+len(turns))
	result = append(result, history...)
	return append(result, turns...)
}

// Last returns the most recent turn and true, or the zero Turn and
// false when the history is empty.
func (history History) Last() (Turn, bool) {
	if len(history) == 0 {
		return Turn{}, false
	}
	return history[len(history)-1], true
}

// Validate checks every turn's role. Returns the first error found,
// annotated with the offending index.
func (history History) Validate() error {
	for index, t := range history {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("history[%d]: %w", index, err)
		}
	}
	return nil
}

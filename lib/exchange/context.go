// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import "github.com/bureau-foundation/llmchat/lib/turn"

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// BuildContext returns the turns sent to the provider for one
// exchange: a system turn, every turn of history in order, and the new
// user message. The result has len(history)+2 entries and never shares
// storage with history. An empty systemPrompt falls back to
// [DefaultSystemPrompt]. An empty message is sent as-is.
func BuildContext(history turn.History, systemPrompt, message string) []turn.Turn {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	turns := make([]turn.Turn, 0, len(history)+2)
	turns = append(turns, turn.System(systemPrompt))
	turns = append(turns, history...)
	return append(turns, turn.User(message))
}

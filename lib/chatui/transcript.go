// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/tui"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// transcriptRenderer renders turns into transcript text. Rendered
// turns are cached by role and content: finalized turns never change,
// so during a streamed reply only the growing last turn is rendered
// again. The cache is dropped when the width changes or the
// conversation is cleared.
type transcriptRenderer struct {
	theme tui.Theme
	width int
	cache map[turn.Turn]string
}

func newTranscriptRenderer(theme tui.Theme) *transcriptRenderer {
	return &transcriptRenderer{theme: theme, cache: make(map[turn.Turn]string)}
}

// setWidth changes the wrap width, invalidating the cache on change.
func (renderer *transcriptRenderer) setWidth(width int) {
	if width == renderer.width {
		return
	}
	renderer.width = width
	renderer.reset()
}

func (renderer *transcriptRenderer) reset() {
	clear(renderer.cache)
}

// render returns the transcript for history. pending, when non-empty,
// is appended as a trailing line (the streaming indicator).
func (renderer *transcriptRenderer) render(history turn.History, pending string) string {
	blocks := make([]string, 0, len(history)+1)
	for index, t := range history {
		// The last turn is the one a streamed reply grows; caching
		// every intermediate state of it would fill the cache with
		// prefixes that are never shown again.
		if index == len(history)-1 {
			blocks = append(blocks, renderer.renderTurn(t))
			continue
		}
		blocks = append(blocks, renderer.cached(t))
	}
	if pending != "" {
		blocks = append(blocks, pending)
	}
	return strings.Join(blocks, "\n\n")
}

func (renderer *transcriptRenderer) cached(t turn.Turn) string {
	if rendered, ok := renderer.cache[t]; ok {
		return rendered
	}
	rendered := renderer.renderTurn(t)
	renderer.cache[t] = rendered
	return rendered
}

// renderTurn renders one turn: a role label line, then the content.
// User turns are wrapped verbatim; assistant turns are rendered as
// markdown unless they carry an exchange error.
func (renderer *transcriptRenderer) renderTurn(t turn.Turn) string {
	theme := renderer.theme
	width := max(renderer.width, 20)

	label := lipgloss.NewStyle().Bold(true).Foreground(theme.RoleColor(t.Role)).Render(roleLabel(t.Role))

	var body string
	switch {
	case t.Role == turn.RoleAssistant && exchange.IsErrorText(t.Content):
		body = lipgloss.NewStyle().Foreground(theme.ErrorText).
			Render(ansi.Wrap(t.Content, width, wrapBreakpoints))
	case t.Role == turn.RoleAssistant:
		body = renderMarkdown(t.Content, theme, width)
	default:
		body = lipgloss.NewStyle().Foreground(theme.NormalText).
			Render(ansi.Wrap(t.Content, width, wrapBreakpoints))
	}
	if body == "" {
		return label
	}
	return label + "\n" + body
}

func roleLabel(role turn.Role) string {
	switch role {
	case turn.RoleUser:
		return "You"
	case turn.RoleAssistant:
		return "Assistant"
	case turn.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

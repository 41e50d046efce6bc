// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"log/slog"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/llmchat/lib/turn"
)

// Theme defines the color palette for the chat TUI. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Speaker labels above each turn.
	UserLabel      lipgloss.Color
	AssistantLabel lipgloss.Color
	SystemLabel    lipgloss.Color

	// ErrorText colors assistant turns that carry an exchange failure,
	// and error records in the status bar.
	ErrorText lipgloss.Color

	// WarningText colors warning records in the status bar.
	WarningText lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	HeaderBackground lipgloss.Color
	BorderColor      lipgloss.Color
	HelpText         lipgloss.Color

	// Accent marks activity: the streaming spinner and the scrollbar
	// thumb.
	Accent lipgloss.Color

	// LinkForeground colors link URLs in rendered replies.
	LinkForeground lipgloss.Color
}

// RoleColor returns the label color for a turn role. Unknown roles
// return FaintText.
func (theme Theme) RoleColor(role turn.Role) lipgloss.Color {
	switch role {
	case turn.RoleUser:
		return theme.UserLabel
	case turn.RoleAssistant:
		return theme.AssistantLabel
	case turn.RoleSystem:
		return theme.SystemLabel
	default:
		return theme.FaintText
	}
}

// LevelColor returns the status bar color for a log level.
func (theme Theme) LevelColor(level slog.Level) lipgloss.Color {
	switch {
	case level >= slog.LevelError:
		return theme.ErrorText
	case level >= slog.LevelWarn:
		return theme.WarningText
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	UserLabel:      lipgloss.Color("75"),  // blue
	AssistantLabel: lipgloss.Color("114"), // green
	SystemLabel:    lipgloss.Color("141"), // light purple

	ErrorText:   lipgloss.Color("196"), // red
	WarningText: lipgloss.Color("220"), // amber

	HeaderForeground: lipgloss.Color("255"),
	HeaderBackground: lipgloss.Color("236"),
	BorderColor:      lipgloss.Color("240"),
	HelpText:         lipgloss.Color("241"),

	Accent: lipgloss.Color("220"),

	LinkForeground: lipgloss.Color("75"),
}

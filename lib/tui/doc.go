// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui provides shared terminal user interface pieces for
// llmchat's interactive front-end: the color theme and the scrollbar
// drawn beside the transcript. Built on lipgloss; the bubbletea model
// that uses them lives in chatui.
package tui

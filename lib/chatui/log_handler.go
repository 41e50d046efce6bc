// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// statusMsg delivers a log record to the model for display in the
// status bar.
type statusMsg struct {
	// Text is the one-line rendering: message, then attributes.
	Text string

	// Level selects the status bar color.
	Level slog.Level
}

// statusFadeMsg clears the status bar if no newer record has arrived
// since the one identified by sequence.
type statusFadeMsg struct {
	sequence int
}

// statusFadeDelay is how long a record stays in the status bar before
// the key help line returns.
const statusFadeDelay = 5 * time.Second

// messageSender is the part of tea.Program the handler uses.
type messageSender interface {
	Send(message tea.Msg)
}

type senderBox struct {
	sender messageSender
}

// TUILogHandler is a slog.Handler that routes log records into a
// bubbletea program as status bar messages. Records below the
// configured level are dropped, as are records that arrive before
// SetProgram is called.
//
// Handlers derived via WithAttrs and WithGroup share the program
// pointer, so one SetProgram call reaches all of them.
type TUILogHandler struct {
	level  slog.Level
	target *atomic.Pointer[senderBox]
	attrs  []string
	prefix string
}

// NewTUILogHandler creates a handler that delivers records at or above
// level. Call SetProgram once the tea.Program exists.
func NewTUILogHandler(level slog.Level) *TUILogHandler {
	return &TUILogHandler{
		level:  level,
		target: &atomic.Pointer[senderBox]{},
	}
}

// SetProgram sets the program that receives status messages. Safe to
// call from any goroutine.
func (handler *TUILogHandler) SetProgram(program *tea.Program) {
	handler.setSender(program)
}

func (handler *TUILogHandler) setSender(sender messageSender) {
	handler.target.Store(&senderBox{sender: sender})
}

// Enabled reports whether records at level are delivered.
func (handler *TUILogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

// Handle formats the record as "message (key=value, ...)" and sends
// it to the program.
func (handler *TUILogHandler) Handle(_ context.Context, record slog.Record) error {
	box := handler.target.Load()
	if box == nil {
		return nil
	}

	parts := append([]string(nil), handler.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		parts = appendAttr(parts, handler.prefix, attr)
		return true
	})

	text := record.Message
	if len(parts) > 0 {
		text += " (" + strings.Join(parts, ", ") + ")"
	}
	box.sender.Send(statusMsg{Text: text, Level: record.Level})
	return nil
}

// WithAttrs returns a handler that adds attrs to every record.
func (handler *TUILogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := *handler
	derived.attrs = append([]string(nil), handler.attrs...)
	for _, attr := range attrs {
		derived.attrs = appendAttr(derived.attrs, handler.prefix, attr)
	}
	return &derived
}

// WithGroup returns a handler that qualifies subsequent attribute keys
// with name.
func (handler *TUILogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return handler
	}
	derived := *handler
	derived.prefix = handler.prefix + name + "."
	return &derived
}

// appendAttr renders attr as key=value, flattening groups into dotted
// keys.
func appendAttr(parts []string, prefix string, attr slog.Attr) []string {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix += attr.Key + "."
		}
		for _, member := range value.Group() {
			parts = appendAttr(parts, groupPrefix, member)
		}
		return parts
	}
	if attr.Key == "" {
		return parts
	}
	return append(parts, prefix+attr.Key+"="+value.String())
}

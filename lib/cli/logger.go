// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger writing to stderr.
// format selects the handler: "text" or "json" force one, and the
// empty string picks slog.TextHandler when stderr is a terminal and
// slog.JSONHandler when it is piped or redirected.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger(slog.LevelInfo, "").With(
//	    "command", "llmchat-server",
//	    "model", cfg.Model.Name,
//	)
func NewCommandLogger(level slog.Level, format string) (*slog.Logger, error) {
	handler, err := newHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level, format)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(writer io.Writer, isTerminal bool, level slog.Level, format string) (slog.Handler, error) {
	options := &slog.HandlerOptions{Level: level}
	switch format {
	case "text":
		return slog.NewTextHandler(writer, options), nil
	case "json":
		return slog.NewJSONHandler(writer, options), nil
	case "":
		if isTerminal {
			return slog.NewTextHandler(writer, options), nil
		}
		return slog.NewJSONHandler(writer, options), nil
	default:
		return nil, Validation("unknown log format %q (want text or json)", format)
	}
}

// OpenFileLogHandler creates a slog.JSONHandler that writes every
// record at debug level and above to the file at path. The file is
// created or truncated. The returned function closes it.
func OpenFileLogHandler(path string) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

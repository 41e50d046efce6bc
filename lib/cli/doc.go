// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the process-level plumbing shared by the llmchat
// binaries: logger construction, slog fan-out, and the error types
// main inspects to pick an exit code.
package cli

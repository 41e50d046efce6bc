// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies the llmchat build.
//
// [Version], [GitCommit], [GitDirty], and [BuildTime] are stamped with
// -ldflags -X and default to "0.1.0-dev"/"unknown" in development
// builds and tests. [Current] gathers them with the Go toolchain and
// platform into a [Build], which both binaries use three ways: the
// --version output ([Print]), the User-Agent sent to the completion
// endpoint ([Build.UserAgent]), and the server's startup log record
// (Build implements slog.LogValuer).
package version

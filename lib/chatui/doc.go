// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the terminal front-end for llmchat: a bubbletea
// [Model] with a connection header, a scrollable transcript, a
// single-line input, and a status bar.
//
// The model owns the caller side of the exchange contract. It keeps
// the committed [turn.History], hands it to the orchestrator on
// submit, and replaces its displayed transcript with every snapshot
// the exchange yields. When the exchange ends the last snapshot
// becomes the committed history. Only one exchange runs at a time;
// the input is disabled until it ends.
//
// Assistant turns are rendered as markdown (goldmark, with chroma
// highlighting for fenced code). Log records at warn and above reach
// the status bar through [TUILogHandler], since writing to stderr
// would corrupt the alternate screen.
package chatui

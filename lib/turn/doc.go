// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package turn defines the shape of a conversation: a [Turn] is one
// (role, content) pair and a [History] is the chronological list of
// finalized turns that precedes an exchange.
//
// History has value semantics. Every operation that produces a longer
// history allocates a new backing array, so a History handed to the
// exchange engine is never written through by it, and snapshots
// returned to a UI never share storage with each other.
//
// This package depends on no other llmchat packages.
package turn

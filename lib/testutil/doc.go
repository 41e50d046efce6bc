// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides helpers for tests that wait on streams.
//
// Exchanges, TUI commands, and web handlers all deliver results
// asynchronously. [RequireReceive] and [RequireClosed] bound every
// wait on a channel with a timeout, and [CollectSnapshots] bounds
// ranging a snapshot sequence, so a reply that never settles fails
// the test with a message instead of hanging the suite.
// [ReplyContents] reduces snapshots to the growing reply text.
package testutil

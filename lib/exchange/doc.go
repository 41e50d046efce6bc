// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package exchange is the streaming exchange engine. One exchange takes
// a new user message and the prior [turn.History], sends the assembled
// context to an [llm.Provider], and produces a lazy sequence of
// History snapshots: one per received fragment of the reply, each a
// complete displayable conversation ending in the in-progress
// assistant turn.
//
// The pieces compose bottom-up:
//
//   - [BuildContext] assembles the provider context: system prompt,
//     prior turns, new user message.
//   - [Aggregate] folds a fragment sequence into snapshots. It trusts
//     its input and performs no error handling.
//   - [Orchestrator] wires the two to a provider and is the sole
//     containment boundary for failures: any error, at any point in
//     the exchange, becomes one terminal assistant turn carrying
//     [ErrorText]. Callers never see an error value from the
//     snapshot sequence.
//
// Snapshots are independent values. A caller may keep every snapshot,
// keep only the last, or stop ranging early; stopping early closes the
// provider stream and releases the underlying connection.
package exchange

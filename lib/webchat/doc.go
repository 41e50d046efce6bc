// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package webchat serves the browser chat surface.
//
// [Handler] routes three endpoints: the embedded single-page UI at
// "/", connection details at "/api/info", and "/api/chat", which runs
// one exchange per request and streams every snapshot to the browser
// as a server-sent event. The browser owns the conversation: it sends
// its full history with each message and replaces it with the
// snapshots it receives, so the server keeps no per-session state.
//
// [Server] owns the TCP listener and graceful shutdown. Serve blocks
// until its context is cancelled, then abandons in-flight exchanges
// and waits for their handlers to return.
package webchat

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is a minimal streaming client for chat completion APIs.
//
// The primary abstraction is [Provider]. A provider turns a [Request]
// into an [EventStream], which yields [StreamEvent] values as the
// server produces them while accumulating the complete [Response].
// Callers iterate with [EventStream.Next] until [io.EOF] and must call
// [EventStream.Close] when done, including when they stop early: Close
// releases the HTTP response body and with it the connection.
//
// Streaming responses are Server-Sent Events, parsed by [SSEScanner].
//
// Current provider implementations:
//   - [OpenAI]: any endpoint speaking the OpenAI chat completions wire
//     format (OpenAI, vLLM, Ollama, llama.cpp, Docker Model Runner,
//     OpenRouter, ...), addressed by base URL.
package llm

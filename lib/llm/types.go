// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import "errors"

// ErrNotConfigured is returned by a provider when a request cannot be
// sent because the endpoint or model is missing. Detected per request
// rather than at construction so that a misconfigured process can
// still start and report the problem in-band.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Role is the speaker of a Message in the provider wire format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one text message sent to the provider.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request.
type Request struct {
	// Model is the provider's model identifier. Required.
	Model string

	// Messages is the full ordered context, system message first
	// when one is used.
	Messages []Message

	// MaxTokens caps the length of the generated reply. Zero omits
	// the cap and leaves the provider default in effect.
	MaxTokens int

	// Temperature is the sampling temperature. Nil leaves the
	// provider default in effect.
	Temperature *float64
}

// StopReason explains why generation ended.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token accounting for a response when the provider
// supplies it.
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	CacheReadTokens int64
}

// Response is the metadata a stream reports alongside its text:
// the model that served it, why generation stopped, and token usage.
// Reply text is not retained; consumers accumulate deltas themselves.
type Response struct {
	Model      string
	StopReason StopReason
	Usage      Usage
}

// EventType discriminates StreamEvent values.
type EventType string

const (
	// EventTextDelta carries the next fragment of reply text in Text.
	EventTextDelta EventType = "text_delta"

	// EventDone is the provider's completion signal. The reply is
	// complete when it arrives, and every later call to Next returns
	// io.EOF without reading from the connection, which some servers
	// and proxies hold open after the sentinel.
	EventDone EventType = "done"

	// EventError reports an error the provider sent in-band, inside
	// an otherwise successful HTTP response. Error is set.
	EventError EventType = "error"
)

// StreamEvent is one event from an EventStream.
type StreamEvent struct {
	Type  EventType
	Text  string
	Error error
}

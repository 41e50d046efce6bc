// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIConfig configures an [OpenAI] provider.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1" or
	// "http://localhost:12434/engines/v1". The provider appends
	// "/chat/completions". Empty makes every request fail with
	// ErrNotConfigured.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty. Local
	// OpenAI-compatible servers typically need none.
	APIKey string

	// HTTPClient sends requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// UserAgent is sent with every request when non-empty.
	UserAgent string
}

// OpenAI implements [Provider] for the OpenAI chat completions API and
// every server that implements its wire format.
type OpenAI struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(config OpenAIConfig) *OpenAI {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(config.BaseURL), "/"),
		apiKey:     config.APIKey,
		userAgent:  config.UserAgent,
	}
}

// Endpoint returns the chat completions URL requests are sent to, or
// the empty string when no base URL is configured.
func (provider *OpenAI) Endpoint() string {
	if provider.baseURL == "" {
		return ""
	}
	return provider.baseURL + "/chat/completions"
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *OpenAI) Stream(ctx context.Context, request Request) (*EventStream, error) {
	if provider.baseURL == "" {
		return nil, fmt.Errorf("%w: no endpoint URL", ErrNotConfigured)
	}
	if request.Model == "" {
		return nil, fmt.Errorf("%w: no model name", ErrNotConfigured)
	}

	httpResponse, err := postJSON(ctx, provider.httpClient, provider.Endpoint(),
		provider.apiKey, provider.userAgent, buildOpenAIRequest(request), "llm/openai")
	if err != nil {
		return nil, err
	}

	return newOpenAIEventStream(httpResponse.Body), nil
}

// buildOpenAIRequest converts a Request to the wire format with
// streaming enabled.
func buildOpenAIRequest(request Request) openaiRequest {
	wireRequest := openaiRequest{
		Model:         request.Model,
		Messages:      make([]openaiMessage, 0, len(request.Messages)),
		MaxTokens:     request.MaxTokens,
		Temperature:   request.Temperature,
		Stream:        true,
		StreamOptions: &openaiStreamOptions{IncludeUsage: true},
	}
	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, openaiMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}
	return wireRequest
}

// newOpenAIEventStream creates an EventStream that parses OpenAI SSE
// chunks. Every non-empty content delta becomes one EventTextDelta, in
// arrival order. Chunks without content (role announcements, the
// finish chunk, the trailing usage chunk) update the accumulated
// Response but emit nothing.
func newOpenAIEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)
	var modelSet bool

	stream := NewEventStream(nil, body)
	stream.next = func() (StreamEvent, error) {
		for {
			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/openai: reading SSE: %w", err)
				}
				return StreamEvent{}, io.EOF
			}

			sseEvent := sseScanner.Event()
			if sseEvent.Data == "[DONE]" {
				return StreamEvent{Type: EventDone}, nil
			}

			var chunk openaiStreamChunk
			if err := json.Unmarshal([]byte(sseEvent.Data), &chunk); err != nil {
				return StreamEvent{}, fmt.Errorf("llm/openai: parsing stream chunk: %w", err)
			}

			// Errors arrive as ordinary data lines carrying an "error"
			// object and none of the fields of a completion chunk.
			if chunk.Error != nil && chunk.Error.Message != "" {
				return StreamEvent{
					Type:  EventError,
					Error: fmt.Errorf("llm/openai: stream error: %s", chunk.Error),
				}, nil
			}

			if !modelSet && chunk.Model != "" {
				stream.SetModel(chunk.Model)
				modelSet = true
			}

			if chunk.Usage != nil {
				usage := Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
				if chunk.Usage.PromptTokensDetails != nil {
					usage.CacheReadTokens = chunk.Usage.PromptTokensDetails.CachedTokens
				}
				stream.SetUsage(usage)
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != nil {
				stream.SetStopReason(mapOpenAIFinishReason(*choice.FinishReason))
			}
			if choice.Delta.Content != "" {
				return StreamEvent{Type: EventTextDelta, Text: choice.Delta.Content}, nil
			}
		}
	}

	return stream
}

func mapOpenAIFinishReason(reason string) StopReason {
	switch reason {
	case "stop":
		return StopReasonEndTurn
	case "length":
		return StopReasonMaxTokens
	default:
		// Preserve unknown reasons (e.g., "content_filter") as-is.
		return StopReason(reason)
	}
}

// --- OpenAI wire types ---

type openaiRequest struct {
	Model         string               `json:"model"`
	Messages      []openaiMessage      `json:"messages"`
	MaxTokens     int                  `json:"max_tokens,omitempty"`
	Temperature   *float64             `json:"temperature,omitempty"`
	Stream        bool                 `json:"stream"`
	StreamOptions *openaiStreamOptions `json:"stream_options,omitempty"`
}

type openaiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiUsage struct {
	PromptTokens        int64                      `json:"prompt_tokens"`
	CompletionTokens    int64                      `json:"completion_tokens"`
	PromptTokensDetails *openaiPromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

type openaiPromptTokensDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}

// The streaming format uses "delta" instead of "message" in choices,
// and finish_reason is null until the final chunk.

type openaiStreamChunk struct {
	ID      string               `json:"id"`
	Model   string               `json:"model"`
	Choices []openaiStreamChoice `json:"choices"`
	Usage   *openaiUsage         `json:"usage,omitempty"`
	Error   *openaiStreamError   `json:"error,omitempty"`
}

type openaiStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openaiStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

// openaiStreamDelta carries Content as a string; a JSON null decodes
// to "" and is treated as an absent fragment.
type openaiStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type openaiStreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (wireError *openaiStreamError) String() string {
	if wireError.Type == "" {
		return wireError.Message
	}
	return wireError.Type + ": " + wireError.Message
}

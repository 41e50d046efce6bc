// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/llmchat/lib/testutil"
)

// openaiTestServer starts a test server for handler and returns a
// provider pointed at its /v1 root.
func openaiTestServer(t *testing.T, apiKey string, handler http.Handler) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAI(OpenAIConfig{
		BaseURL:    server.URL + "/v1/",
		APIKey:     apiKey,
		HTTPClient: server.Client(),
	})
}

// writeSSE writes each chunk as a data event and flushes after each.
func writeSSE(t *testing.T, writer http.ResponseWriter, chunks ...string) {
	t.Helper()
	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	flusher, ok := writer.(http.Flusher)
	if !ok {
		t.Error("ResponseWriter does not support Flush")
		return
	}
	for _, chunk := range chunks {
		fmt.Fprintf(writer, "data: %s\n\n", chunk)
		flusher.Flush()
	}
}

// drain reads every event until EOF or error.
func drain(stream *EventStream) ([]StreamEvent, error) {
	var events []StreamEvent
	for {
		event, err := stream.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func TestOpenAIStreamText(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", got)
		}
		if got := request.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}

		var wireRequest struct {
			Model       string   `json:"model"`
			MaxTokens   int      `json:"max_tokens"`
			Temperature *float64 `json:"temperature"`
			Stream      bool     `json:"stream"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			t.Errorf("decoding request: %v", err)
			writer.WriteHeader(http.StatusBadRequest)
			return
		}
		if wireRequest.Model != "ai/smollm2" {
			t.Errorf("model = %q, want ai/smollm2", wireRequest.Model)
		}
		if wireRequest.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d, want 1000", wireRequest.MaxTokens)
		}
		if wireRequest.Temperature == nil || *wireRequest.Temperature != 0.7 {
			t.Errorf("temperature = %v, want 0.7", wireRequest.Temperature)
		}
		if !wireRequest.Stream {
			t.Error("stream = false, want true")
		}
		wantRoles := []string{"system", "user", "assistant", "user"}
		if len(wireRequest.Messages) != len(wantRoles) {
			t.Errorf("messages = %d, want %d", len(wireRequest.Messages), len(wantRoles))
		} else {
			for index, role := range wantRoles {
				if wireRequest.Messages[index].Role != role {
					t.Errorf("messages[%d].role = %q, want %q", index, wireRequest.Messages[index].Role, role)
				}
			}
		}

		writeSSE(t, writer,
			`{"id":"c1","model":"ai/smollm2","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}`,
			`{"id":"c1","model":"ai/smollm2","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`,
			`{"id":"c1","model":"ai/smollm2","choices":[{"index":0,"delta":{"content":null},"finish_reason":null}]}`,
			`{"id":"c1","model":"ai/smollm2","choices":[{"index":0,"delta":{"content":"lo!"},"finish_reason":null}]}`,
			`{"id":"c1","model":"ai/smollm2","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"c1","model":"ai/smollm2","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3}}`,
			`[DONE]`,
		)
	})

	provider := openaiTestServer(t, "sk-test", mux)

	temperature := 0.7
	stream, err := provider.Stream(context.Background(), Request{
		Model:       "ai/smollm2",
		MaxTokens:   1000,
		Temperature: &temperature,
		Messages: []Message{
			{Role: RoleSystem, Content: "Be brief."},
			{Role: RoleUser, Content: "A"},
			{Role: RoleAssistant, Content: "B"},
			{Role: RoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	events, err := drain(stream)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	var deltas []string
	var doneCount int
	for _, event := range events {
		switch event.Type {
		case EventTextDelta:
			deltas = append(deltas, event.Text)
		case EventDone:
			doneCount++
		case EventError:
			t.Fatalf("stream error: %v", event.Error)
		}
	}
	if strings.Join(deltas, "|") != "Hel|lo!" {
		t.Errorf("deltas = %q, want [Hel lo!]", deltas)
	}
	if doneCount != 1 {
		t.Errorf("done events = %d, want 1", doneCount)
	}

	response := stream.Response()
	if response.Model != "ai/smollm2" {
		t.Errorf("Model = %q, want ai/smollm2", response.Model)
	}
	if response.StopReason != StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", response.StopReason)
	}
	if response.Usage.InputTokens != 12 || response.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v, want 12 in / 3 out", response.Usage)
	}
}

func TestOpenAIStreamWithoutAPIKey(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want none", got)
		}
		writeSSE(t, writer, `[DONE]`)
	}))

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	if _, err := drain(stream); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestOpenAIStreamUserAgent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if got := request.Header.Get("User-Agent"); got != "llmchat/1.2.3" {
			t.Errorf("User-Agent = %q, want llmchat/1.2.3", got)
		}
		writeSSE(t, writer, `[DONE]`)
	}))
	t.Cleanup(server.Close)
	provider := NewOpenAI(OpenAIConfig{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		UserAgent:  "llmchat/1.2.3",
	})

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()
	if _, err := drain(stream); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

// The [DONE] sentinel ends the stream even when the server keeps the
// connection open afterwards.
func TestOpenAIStreamStopsAtDone(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writeSSE(t, writer,
			`{"model":"ai/smollm2","choices":[{"index":0,"delta":{"content":"Hi"},"finish_reason":null}]}`,
			`[DONE]`,
		)
		select {
		case <-request.Context().Done():
		case <-release:
		}
	}))
	// Registered after the server, so it runs before server.Close.
	t.Cleanup(func() { close(release) })

	stream, err := provider.Stream(context.Background(), Request{Model: "ai/smollm2"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	type result struct {
		events []StreamEvent
		err    error
	}
	drained := make(chan result, 1)
	go func() {
		events, err := drain(stream)
		drained <- result{events, err}
	}()
	got := testutil.RequireReceive(t, drained, 5*time.Second, "stream ending at [DONE]")
	if got.err != nil {
		t.Fatalf("drain: %v", got.err)
	}
	if len(got.events) != 2 || got.events[0].Text != "Hi" || got.events[1].Type != EventDone {
		t.Errorf("events = %+v, want the delta then done", got.events)
	}

	// Later calls report EOF without touching the held connection.
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("Next after done = %v, want io.EOF", err)
	}
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantType    string
		wantMessage string
	}{
		{
			name:        "structured",
			status:      http.StatusUnauthorized,
			body:        `{"error":{"type":"invalid_request_error","message":"Incorrect API key provided","code":"invalid_api_key"}}`,
			wantType:    "invalid_request_error",
			wantMessage: "Incorrect API key provided",
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable\n",
			wantMessage: "upstream unavailable",
		},
		{
			name:        "empty body",
			status:      http.StatusNotFound,
			wantMessage: "Not Found",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(test.status)
				io.WriteString(writer, test.body)
			}))

			_, err := provider.Stream(context.Background(), Request{Model: "m"})
			var providerError *ProviderError
			if !errors.As(err, &providerError) {
				t.Fatalf("error = %v (%T), want *ProviderError", err, err)
			}
			if providerError.StatusCode != test.status {
				t.Errorf("StatusCode = %d, want %d", providerError.StatusCode, test.status)
			}
			if providerError.Type != test.wantType {
				t.Errorf("Type = %q, want %q", providerError.Type, test.wantType)
			}
			if providerError.Message != test.wantMessage {
				t.Errorf("Message = %q, want %q", providerError.Message, test.wantMessage)
			}
		})
	}
}

func TestOpenAIStreamInBandError(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeSSE(t, writer,
			`{"id":"c1","model":"m","choices":[{"index":0,"delta":{"content":"partial"},"finish_reason":null}]}`,
			`{"error":{"type":"server_error","message":"model crashed"}}`,
		)
	}))

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	events, err := drain(stream)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[1].Type != EventError {
		t.Fatalf("events[1].Type = %q, want error", events[1].Type)
	}
	if !strings.Contains(events[1].Error.Error(), "server_error: model crashed") {
		t.Errorf("error = %v, want server_error: model crashed", events[1].Error)
	}
}

func TestOpenAIStreamMalformedChunk(t *testing.T) {
	t.Parallel()

	provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writeSSE(t, writer, `{"choices":[{"delta":{"content":"ok"}}]}`, `{not json`)
	}))

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer stream.Close()

	events, err := drain(stream)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !strings.Contains(err.Error(), "llm/openai: parsing stream chunk") {
		t.Errorf("error = %v", err)
	}
	if len(events) != 1 || events[0].Text != "ok" {
		t.Errorf("events before error = %+v, want one delta ok", events)
	}
}

func TestOpenAINotConfigured(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		baseURL  string
		model    string
		contains string
	}{
		{name: "no endpoint", model: "m", contains: "no endpoint URL"},
		{name: "blank endpoint", baseURL: "   ", model: "m", contains: "no endpoint URL"},
		{name: "no model", baseURL: "http://127.0.0.1:1/v1", contains: "no model name"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			provider := NewOpenAI(OpenAIConfig{BaseURL: test.baseURL})
			_, err := provider.Stream(context.Background(), Request{Model: test.model})
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("error = %v, want ErrNotConfigured", err)
			}
			if !strings.Contains(err.Error(), test.contains) {
				t.Errorf("error = %q, want it to mention %q", err, test.contains)
			}
		})
	}
}

func TestOpenAIEndpoint(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"http://localhost:8080/v1":   "http://localhost:8080/v1/chat/completions",
		"http://localhost:8080/v1/":  "http://localhost:8080/v1/chat/completions",
		" http://host/engines/v1// ": "http://host/engines/v1/chat/completions",
		"":                           "",
	}
	for baseURL, want := range tests {
		if got := NewOpenAI(OpenAIConfig{BaseURL: baseURL}).Endpoint(); got != want {
			t.Errorf("Endpoint(%q) = %q, want %q", baseURL, got, want)
		}
	}
}

func TestOpenAIStreamCloseReleasesConnection(t *testing.T) {
	t.Parallel()

	handlerDone := make(chan struct{})
	provider := openaiTestServer(t, "", http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer close(handlerDone)
		writeSSE(t, writer, `{"choices":[{"delta":{"content":"first"}}]}`)
		// Hold the stream open until the client goes away.
		<-request.Context().Done()
	}))

	stream, err := provider.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	event, err := stream.Next()
	if err != nil || event.Text != "first" {
		t.Fatalf("Next = %+v, %v; want first delta", event, err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second Close is a no-op.
	if err := stream.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case <-handlerDone:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("server handler still running after Close")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Provider is the interface for LLM API backends. Implementations
// translate between the types in this package and a vendor wire format.
type Provider interface {
	// Stream sends a request and returns an [EventStream] that yields
	// events as they arrive. The caller must call [EventStream.Close]
	// when done, even if iteration ended early.
	Stream(ctx context.Context, request Request) (*EventStream, error)
}

// nextFunc is the iteration function for an EventStream. Returns
// io.EOF when the stream is complete.
type nextFunc func() (StreamEvent, error)

// EventStream reads streaming events from an LLM response. It yields
// [StreamEvent] values via [Next] while recording the [Response]
// metadata the provider reports.
//
// EventStream is not safe for concurrent use, except that [Response]
// and [Close] may be called from another goroutine.
type EventStream struct {
	next      nextFunc
	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
	response  Response
	mutex     sync.Mutex
	done      bool
}

// NewEventStream creates an EventStream from a provider-specific
// iteration function and an io.Closer for the underlying resource
// (typically the HTTP response body). The next function must return
// (event, nil) for each event and (zero, io.EOF) when the stream is
// complete. A nil closer is allowed.
func NewEventStream(next nextFunc, closer io.Closer) *EventStream {
	return &EventStream{
		next:   next,
		closer: closer,
	}
}

// Next returns the next event from the stream. Returns io.EOF when
// the stream is complete, and keeps returning io.EOF afterwards. An
// [EventDone] event completes the stream: it is returned once and
// Next does not read past it.
//
//	for {
//	    event, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // process event
//	}
func (stream *EventStream) Next() (StreamEvent, error) {
	if stream.done {
		return StreamEvent{}, io.EOF
	}

	event, err := stream.next()
	if err != nil {
		if err == io.EOF {
			stream.done = true
		}
		return event, err
	}

	if event.Type == EventDone {
		stream.done = true
	}
	return event, nil
}

// Response returns the response accumulated so far. Complete only
// after [Next] has returned [io.EOF].
func (stream *EventStream) Response() Response {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	return stream.response
}

// Close releases the underlying resources. Safe to call more than
// once; only the first call reaches the closer.
func (stream *EventStream) Close() error {
	stream.closeOnce.Do(func() {
		if stream.closer != nil {
			stream.closeErr = stream.closer.Close()
		}
	})
	return stream.closeErr
}

// SetStopReason records why generation ended.
func (stream *EventStream) SetStopReason(reason StopReason) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.StopReason = reason
}

// SetUsage records token accounting reported by the provider.
func (stream *EventStream) SetUsage(usage Usage) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Usage = usage
}

// SetModel records the model name the provider reports serving.
func (stream *EventStream) SetModel(model string) {
	stream.mutex.Lock()
	defer stream.mutex.Unlock()
	stream.response.Model = model
}

// ProviderError is returned when the LLM API responds with a non-200
// status.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider-specific error type string
	// (e.g., "invalid_request_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// postJSON marshals wireRequest, POSTs it to endpoint, and returns the
// response. Non-200 responses are converted to a ProviderError with
// the body already closed. apiKey, when non-empty, is sent as a bearer
// token; an empty userAgent keeps net/http's default. On success the
// caller owns the response body.
func postJSON(ctx context.Context, httpClient *http.Client, endpoint, apiKey, userAgent string, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+apiKey)
	}
	if userAgent != "" {
		httpRequest.Header.Set("User-Agent", userAgent)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error body in the common
// {"error":{"type":"...","message":"..."}} format. Bodies in any other
// shape are reported verbatim, truncated to 4 KiB.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(httpResponse.StatusCode)
	}
	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    message,
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webchat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/llmchat/lib/clock"
	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/llm"
	"github.com/bureau-foundation/llmchat/lib/testutil"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// fakeProvider streams fixed fragments, or blocks until the request
// context ends when hold is set.
type fakeProvider struct {
	fragments []string
	streamErr error
	hold      bool

	mutex     sync.Mutex
	requests  []llm.Request
	started   chan struct{}
	closed    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func newFakeProvider(fragments ...string) *fakeProvider {
	return &fakeProvider{
		fragments: fragments,
		started:   make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

func (provider *fakeProvider) Stream(ctx context.Context, request llm.Request) (*llm.EventStream, error) {
	provider.mutex.Lock()
	provider.requests = append(provider.requests, request)
	provider.mutex.Unlock()
	provider.startOnce.Do(func() { close(provider.started) })

	if provider.streamErr != nil {
		return nil, provider.streamErr
	}
	index := 0
	next := func() (llm.StreamEvent, error) {
		if provider.hold {
			<-ctx.Done()
			return llm.StreamEvent{}, ctx.Err()
		}
		if index < len(provider.fragments) {
			text := provider.fragments[index]
			index++
			return llm.StreamEvent{Type: llm.EventTextDelta, Text: text}, nil
		}
		return llm.StreamEvent{}, io.EOF
	}
	return llm.NewEventStream(next, closerFunc(func() error {
		provider.closeOnce.Do(func() { close(provider.closed) })
		return nil
	})), nil
}

func (provider *fakeProvider) lastRequest(t *testing.T) llm.Request {
	t.Helper()
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	if len(provider.requests) == 0 {
		t.Fatal("provider received no requests")
	}
	return provider.requests[len(provider.requests)-1]
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newTestHandler(provider llm.Provider) *Handler {
	testClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewHandler(HandlerConfig{
		Orchestrator: exchange.NewOrchestrator(exchange.Config{
			Provider: provider,
			Model:    "ai/smollm2",
			Clock:    testClock,
		}),
		Endpoint: "http://localhost:12434/engines/v1",
		Model:    "ai/smollm2",
		Clock:    testClock,
	})
}

type sseEvent struct {
	name string
	data string
}

// parseEvents splits a text/event-stream body into events.
func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		event := sseEvent{name: "message"}
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				event.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				event.data = strings.TrimPrefix(line, "data: ")
			default:
				t.Fatalf("unexpected line %q in event stream", line)
			}
		}
		events = append(events, event)
	}
	return events
}

// splitEvents decodes the snapshot events and the trailing done event.
func splitEvents(t *testing.T, events []sseEvent) ([]turn.History, DoneEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events in stream")
	}
	last := events[len(events)-1]
	if last.name != "done" {
		t.Fatalf("last event = %q, want done", last.name)
	}
	var done DoneEvent
	if err := json.Unmarshal([]byte(last.data), &done); err != nil {
		t.Fatalf("decoding done event: %v", err)
	}

	snapshots := make([]turn.History, 0, len(events)-1)
	for _, event := range events[:len(events)-1] {
		if event.name != "message" {
			t.Fatalf("event %q before done, want message", event.name)
		}
		var snapshot SnapshotEvent
		if err := json.Unmarshal([]byte(event.data), &snapshot); err != nil {
			t.Fatalf("decoding snapshot event %q: %v", event.data, err)
		}
		snapshots = append(snapshots, snapshot.History)
	}
	return snapshots, done
}

func postChat(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestHandleIndex(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(newFakeProvider())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", contentType)
	}
	if !strings.Contains(recorder.Body.String(), "Clear Chat") {
		t.Error("page has no Clear Chat button")
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("GET /missing status = %d, want 404", recorder.Code)
	}
}

func TestHandleInfo(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(newFakeProvider())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/info", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	var info Info
	if err := json.Unmarshal(recorder.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	want := Info{Endpoint: "http://localhost:12434/engines/v1", Model: "ai/smollm2"}
	if info != want {
		t.Errorf("info = %+v, want %+v", info, want)
	}
}

func TestHandleChatStreamsSnapshots(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(newFakeProvider("Hel", "lo!"))
	recorder := postChat(t, handler, `{"message":"Hi","history":[]}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", contentType)
	}

	snapshots, done := splitEvents(t, parseEvents(t, recorder.Body.String()))
	want := []turn.History{
		{turn.User("Hi"), turn.Assistant("Hel")},
		{turn.User("Hi"), turn.Assistant("Hello!")},
	}
	if len(snapshots) != len(want) {
		t.Fatalf("snapshots = %+v, want %+v", snapshots, want)
	}
	for index := range want {
		if len(snapshots[index]) != 2 || snapshots[index][0] != want[index][0] || snapshots[index][1] != want[index][1] {
			t.Errorf("snapshot %d = %+v, want %+v", index, snapshots[index], want[index])
		}
	}
	if done != (DoneEvent{State: exchange.StateSettled}) {
		t.Errorf("done = %+v, want settled", done)
	}
}

func TestHandleChatSendsHistory(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider("Fine.")
	handler := newTestHandler(provider)
	recorder := postChat(t, handler,
		`{"message":"And you?","history":[{"role":"user","content":"Hi"},{"role":"assistant","content":"Hello!"}]}`)

	snapshots, _ := splitEvents(t, parseEvents(t, recorder.Body.String()))
	if len(snapshots) != 1 || len(snapshots[0]) != 4 {
		t.Fatalf("snapshots = %+v, want one 4-turn history", snapshots)
	}
	if snapshots[0][3] != turn.Assistant("Fine.") {
		t.Errorf("last turn = %+v", snapshots[0][3])
	}

	messages := provider.lastRequest(t).Messages
	wantRoles := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(messages) != len(wantRoles) {
		t.Fatalf("request messages = %+v", messages)
	}
	for index, role := range wantRoles {
		if messages[index].Role != role {
			t.Errorf("message %d role = %q, want %q", index, messages[index].Role, role)
		}
	}
}

func TestHandleChatEmptyMessage(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider("Hello?")
	handler := newTestHandler(provider)
	recorder := postChat(t, handler, `{"message":""}`)

	snapshots, done := splitEvents(t, parseEvents(t, recorder.Body.String()))
	if done.State != exchange.StateSettled || len(snapshots) != 1 {
		t.Fatalf("snapshots = %+v, done = %+v; want one settled snapshot", snapshots, done)
	}
	if snapshots[0][0] != turn.User("") {
		t.Errorf("first turn = %+v, want an empty user turn", snapshots[0][0])
	}
}

func TestHandleChatFailure(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.streamErr = &llm.ProviderError{StatusCode: 401, Type: "invalid_api_key", Message: "bad key"}
	handler := newTestHandler(provider)
	recorder := postChat(t, handler, `{"message":"Hi"}`)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (failures are in-band)", recorder.Code)
	}
	snapshots, done := splitEvents(t, parseEvents(t, recorder.Body.String()))
	if len(snapshots) != 1 {
		t.Fatalf("snapshots = %+v, want one", snapshots)
	}
	last, _ := snapshots[0].Last()
	if !exchange.IsErrorText(last.Content) {
		t.Errorf("last turn = %+v, want an error turn", last)
	}
	want := DoneEvent{State: exchange.StateFailed, FailureKind: exchange.FailureProvider}
	if done != want {
		t.Errorf("done = %+v, want %+v", done, want)
	}
}

func TestHandleChatBadRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"empty body", "", http.StatusBadRequest, "request body is empty"},
		{"malformed json", `{"message":`, http.StatusBadRequest, "decoding request"},
		{"unknown role", `{"message":"Hi","history":[{"role":"tool","content":"x"}]}`, http.StatusBadRequest, `history[0]: turn: unknown role "tool"`},
		{"too large", `{"message":"` + strings.Repeat("a", maxRequestBytes) + `"}`, http.StatusRequestEntityTooLarge, "exceeds"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			provider := newFakeProvider("unused")
			recorder := postChat(t, newTestHandler(provider), test.body)

			if recorder.Code != test.status {
				t.Fatalf("status = %d, want %d: %s", recorder.Code, test.status, recorder.Body)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding error body %q: %v", recorder.Body, err)
			}
			if !strings.Contains(body.Error, test.message) {
				t.Errorf("error = %q, want it to contain %q", body.Error, test.message)
			}
			provider.mutex.Lock()
			defer provider.mutex.Unlock()
			if len(provider.requests) != 0 {
				t.Error("rejected request reached the provider")
			}
		})
	}
}

func TestHandleChatMethodNotAllowed(t *testing.T) {
	t.Parallel()

	recorder := httptest.NewRecorder()
	newTestHandler(newFakeProvider()).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/chat status = %d, want 405", recorder.Code)
	}
}

func TestHandleChatClientDisconnect(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.hold = true
	server := httptest.NewServer(newTestHandler(provider))
	defer server.Close()

	ctx, cancel := context.WithCancel(t.Context())
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/api/chat", strings.NewReader(`{"message":"Hi"}`))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	responseDone := make(chan error, 1)
	go func() {
		response, err := http.DefaultClient.Do(request)
		if err == nil {
			_, err = io.Copy(io.Discard, response.Body)
			response.Body.Close()
		}
		responseDone <- err
	}()

	testutil.RequireClosed(t, provider.started, 5*time.Second, "provider stream started")
	cancel()

	testutil.RequireClosed(t, provider.closed, 5*time.Second, "provider stream closed after disconnect")
	if err := testutil.RequireReceive(t, responseDone, 5*time.Second, "client request returned"); err == nil {
		t.Error("client read the whole stream despite cancelling")
	}
}

func TestHandlerPanicsWithoutOrchestrator(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("NewHandler did not panic")
		}
	}()
	NewHandler(HandlerConfig{})
}

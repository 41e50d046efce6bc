// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package webchat

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/bureau-foundation/llmchat/lib/clock"
	"github.com/bureau-foundation/llmchat/lib/exchange"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// maxRequestBytes bounds a chat request body. The browser resends the
// whole conversation on every message, so this is the practical cap
// on conversation length.
const maxRequestBytes = 4 << 20

//go:embed index.html
var indexPage []byte

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string       `json:"message"`
	History turn.History `json:"history"`
}

// SnapshotEvent is the data of each "message" event in a chat stream.
type SnapshotEvent struct {
	History turn.History `json:"history"`
}

// DoneEvent is the data of the final "done" event in a chat stream.
type DoneEvent struct {
	State       exchange.State       `json:"state"`
	FailureKind exchange.FailureKind `json:"failure_kind,omitempty"`
}

// Info is the body of GET /api/info.
type Info struct {
	Endpoint string `json:"endpoint"`
	Model    string `json:"model"`
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Orchestrator runs one exchange per chat request. Required.
	Orchestrator *exchange.Orchestrator

	// Endpoint and Model are reported by /api/info for the page
	// header.
	Endpoint string
	Model    string

	// Logger receives one record per request. Defaults to a
	// discarding logger.
	Logger *slog.Logger

	// Clock stamps request IDs and measures request duration.
	// Defaults to the real clock.
	Clock clock.Clock
}

// Handler routes the web chat endpoints.
type Handler struct {
	orchestrator *exchange.Orchestrator
	info         Info
	logger       *slog.Logger
	clock        clock.Clock
	sequence     atomic.Uint64
	mux          *http.ServeMux
}

// NewHandler creates the web chat handler.
func NewHandler(config HandlerConfig) *Handler {
	if config.Orchestrator == nil {
		panic("webchat.Handler: Orchestrator is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	handler := &Handler{
		orchestrator: config.Orchestrator,
		info:         Info{Endpoint: config.Endpoint, Model: config.Model},
		logger:       logger,
		clock:        clk,
		mux:          http.NewServeMux(),
	}
	handler.mux.HandleFunc("GET /{$}", handler.handleIndex)
	handler.mux.HandleFunc("GET /api/info", handler.handleInfo)
	handler.mux.HandleFunc("POST /api/chat", handler.handleChat)
	return handler
}

// ServeHTTP implements http.Handler.
func (handler *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	handler.mux.ServeHTTP(writer, request)
}

func (handler *Handler) handleIndex(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.Write(indexPage)
}

func (handler *Handler) handleInfo(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, handler.info)
}

// handleChat runs one exchange and streams its snapshots as
// server-sent events: a "message" event with a SnapshotEvent per
// snapshot, then a "done" event with a DoneEvent. Exchange failures
// arrive in-band as an error turn in the last snapshot; HTTP errors
// are reserved for malformed requests.
func (handler *Handler) handleChat(writer http.ResponseWriter, request *http.Request) {
	var body ChatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(writer, request.Body, maxRequestBytes))
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(writer, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			writeError(writer, http.StatusBadRequest, "request body is empty")
		default:
			writeError(writer, http.StatusBadRequest, "decoding request: %v", err)
		}
		return
	}
	if err := body.History.Validate(); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid history: %v", err)
		return
	}

	flusher, ok := writer.(http.Flusher)
	if !ok {
		writeError(writer, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}

	start := handler.clock.Now()
	logger := handler.logger.With("request_id",
		requestID(start, handler.sequence.Add(1), len(body.History), body.Message))
	logger.Info("chat request",
		"history_turns", len(body.History),
		"message_chars", len(body.Message),
	)

	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	run := handler.orchestrator.Start(request.Context(), body.Message, body.History)
	snapshots := 0
	for snapshot := range run.Snapshots() {
		if err := writeEvent(writer, "", SnapshotEvent{History: snapshot}); err != nil {
			// The client is gone. Leaving the loop abandons the
			// exchange and closes the provider stream.
			logger.Info("chat client disconnected", "snapshots", snapshots, "error", err)
			return
		}
		flusher.Flush()
		snapshots++
	}

	done := DoneEvent{State: run.State(), FailureKind: run.FailureKind()}
	if err := writeEvent(writer, "done", done); err == nil {
		flusher.Flush()
	}

	attrs := []any{
		"state", done.State,
		"snapshots", snapshots,
		"elapsed", handler.clock.Now().Sub(start),
	}
	if done.FailureKind != "" {
		attrs = append(attrs, "failure_kind", done.FailureKind)
	}
	logger.Info("chat request finished", attrs...)
}

// writeEvent writes one server-sent event. An empty name writes an
// unnamed event, which EventSource clients receive as "message".
func writeEvent(writer io.Writer, name string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %T: %w", data, err)
	}
	if name != "" {
		if _, err := fmt.Fprintf(writer, "event: %s\n", name); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(writer, "data: %s\n\n", encoded)
	return err
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(writer, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	// Type is the "event:" field, or empty for the default type.
	Type string

	// Data is the payload. Multiple "data:" lines are joined with
	// newlines.
	Data string

	// ID is the most recent "id:" field seen in the stream. Per the
	// EventSource processing rules the last event ID persists across events
	// until changed.
	ID string
}

// SSEScanner reads Server-Sent Events from an [io.Reader].
//
// Events are delimited by blank lines. Comment lines (starting with
// ":") and unknown fields are ignored. A final event without a
// trailing blank line is still delivered.
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    event := scanner.Event()
//	}
//	if err := scanner.Err(); err != nil {
//	    // handle error
//	}
type SSEScanner struct {
	reader  *bufio.Reader
	current SSEEvent
	lastID  string
	err     error

	// Fields of the event being assembled.
	eventType string
	data      []string
	hasData   bool
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	return &SSEScanner{
		reader: bufio.NewReaderSize(reader, 64*1024),
	}
}

// Next advances to the next event. Returns false at end of stream or
// on error; call [Err] to tell them apart.
func (scanner *SSEScanner) Next() bool {
	scanner.current = SSEEvent{}
	if scanner.err != nil {
		return false
	}

	for {
		line, err := scanner.reader.ReadString('\n')
		if err != nil && line == "" {
			scanner.err = err
			// A stream may end without the blank line that would
			// normally dispatch the last event.
			if err == io.EOF && scanner.hasData {
				scanner.dispatch()
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if scanner.hasData {
				scanner.dispatch()
				return true
			}
			scanner.eventType = ""
			continue
		}

		scanner.applyLine(line)
	}
}

// applyLine interprets one non-blank line of the stream.
func (scanner *SSEScanner) applyLine(line string) {
	if strings.HasPrefix(line, ":") {
		return
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		scanner.data = append(scanner.data, value)
		scanner.hasData = true
	case "event":
		scanner.eventType = value
	case "id":
		// IDs containing NUL are ignored, as EventSource does.
		if !strings.ContainsRune(value, 0) {
			scanner.lastID = value
		}
	}
}

// dispatch moves the assembled fields into current and resets them.
func (scanner *SSEScanner) dispatch() {
	scanner.current = SSEEvent{
		Type: scanner.eventType,
		Data: strings.Join(scanner.data, "\n"),
		ID:   scanner.lastID,
	}
	scanner.eventType = ""
	scanner.data = scanner.data[:0]
	scanner.hasData = false
}

// Event returns the most recently parsed event. Only valid after
// [Next] returns true.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the first non-EOF error encountered while scanning.
func (scanner *SSEScanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}

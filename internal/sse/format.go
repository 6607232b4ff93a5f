package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Event names emitted for a single request, in order.
const (
	EventStart    = "start"
	EventThinking = "thinking"
	EventContent  = "content"
	EventDone     = "done"
	EventError    = "error"
)

// ThinkingText is the content of the thinking event.
const ThinkingText = "Thinking..."

// StartInfo is attached to the start event when known.
type StartInfo struct {
	ChatID  int64  `json:"chatId,omitempty"`
	Backend string `json:"backend,omitempty"`
	Model   string `json:"model,omitempty"`
}

type StartPayload struct {
	RequestID string `json:"requestId"`
	StartInfo
}

type TextPayload struct {
	RequestID string `json:"requestId"`
	Content   string `json:"content"`
}

type ErrorPayload struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

// Marshal encodes v as compact JSON without HTML escaping and without the
// trailing newline json.Encoder appends.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FormatEvent renders one server-sent event frame.
func FormatEvent(name string, payload any) ([]byte, error) {
	data, err := Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", name, err)
	}
	var buf bytes.Buffer
	buf.Grow(len(name) + len(data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(name)
	buf.WriteString("\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// FormatComment renders a comment frame, which clients ignore.
func FormatComment(text string) []byte {
	text = strings.ReplaceAll(text, "\n", " ")
	return []byte(": " + text + "\n\n")
}

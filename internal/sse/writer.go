package sse

import (
	"errors"
	"io"
	"net/http"
	"sync"
)

// Emitter delivers bridge events to one remote consumer.
type Emitter interface {
	Event(name string, payload any) error
	// Heartbeat keeps an idle connection open without producing an event.
	Heartbeat() error
}

var errNoFlush = errors.New("response writer does not support flushing")

// Writer emits text/event-stream frames over an HTTP response.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
}

var _ Emitter = (*Writer)(nil)

// NewWriter writes the event-stream response headers and returns a Writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errNoFlush
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

func (w *Writer) Event(name string, payload any) error {
	frame, err := FormatEvent(name, payload)
	if err != nil {
		return err
	}
	return w.write(frame)
}

func (w *Writer) Heartbeat() error {
	return w.write(FormatComment("heartbeat"))
}

func (w *Writer) write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

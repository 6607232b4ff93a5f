// Package llm defines the token source contract used by the chat
// orchestrator, the registry that maps backend keys to sources, and the
// concrete backends (Gemini, OpenAI, Anthropic, Ollama).
//
// A TokenSource never fails past the stream boundary: transport or API
// errors surface as a single diagnostic increment, after which the stream
// ends normally. Callers treat increments as opaque, ordered text fragments.
package llm

import "context"

// Request describes a single generation.
type Request struct {
	// Prompt is the effective prompt sent as the user turn.
	Prompt string
	// System is optional backend-level instruction text (persona).
	System string
	// Model overrides the source's default model when non-empty.
	Model string
	// Temperature is passed through to the backend.
	Temperature float64
}

// Stream is a blocking sequence of text increments.
// Recv returns io.EOF once the sequence is exhausted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// TokenSource produces text increments for a prompt.
type TokenSource interface {
	// Name returns the registry key of the backend.
	Name() string
	// DefaultModel is used when Request.Model is empty.
	DefaultModel() string
	// Stream starts generating. It never returns an error; failures are
	// reported in-band as a diagnostic increment.
	Stream(ctx context.Context, req Request) Stream
}

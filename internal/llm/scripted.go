package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScriptedTurn is a single response from a ScriptedSource.
type ScriptedTurn struct {
	Chunks     []string      // Increments to emit verbatim
	Text       string        // Text to emit; chunked when Chunks is empty
	Delay      time.Duration // Wait before the first increment
	ChunkDelay time.Duration // Wait between increments
	Err        error         // Fail after emitting the increments
}

// ScriptedSource is a configurable TokenSource for tests and offline runs.
// It replays scripted turns in order and records every request.
type ScriptedSource struct {
	name      string
	model     string
	turns     []ScriptedTurn
	turnIndex int
	Requests  []Request
	mu        sync.Mutex
}

var _ TokenSource = (*ScriptedSource)(nil)

func NewScriptedSource(name string) *ScriptedSource {
	return &ScriptedSource{name: name, model: name + "-model"}
}

func (s *ScriptedSource) Name() string         { return s.name }
func (s *ScriptedSource) DefaultModel() string { return s.model }

// WithModel sets the default model and returns the source for chaining.
func (s *ScriptedSource) WithModel(model string) *ScriptedSource {
	s.model = model
	return s
}

// AddTurn adds a response turn and returns the source for chaining.
func (s *ScriptedSource) AddTurn(t ScriptedTurn) *ScriptedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return s
}

func (s *ScriptedSource) AddChunks(chunks ...string) *ScriptedSource {
	return s.AddTurn(ScriptedTurn{Chunks: chunks})
}

func (s *ScriptedSource) AddText(text string) *ScriptedSource {
	return s.AddTurn(ScriptedTurn{Text: text})
}

func (s *ScriptedSource) AddError(err error) *ScriptedSource {
	return s.AddTurn(ScriptedTurn{Err: err})
}

// RequestCount returns the number of recorded requests.
func (s *ScriptedSource) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// LastRequest returns the most recent request.
func (s *ScriptedSource) LastRequest() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return Request{}, false
	}
	return s.Requests[len(s.Requests)-1], true
}

func (s *ScriptedSource) Stream(ctx context.Context, req Request) Stream {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	var (
		turn ScriptedTurn
		err  error
	)
	if s.turnIndex < len(s.turns) {
		turn = s.turns[s.turnIndex]
		s.turnIndex++
	} else {
		err = fmt.Errorf("no more turns configured (have %d)", len(s.turns))
	}
	s.mu.Unlock()

	return newTextStream(ctx, s.name, func(ctx context.Context, emit func(string) bool) error {
		if err != nil {
			return err
		}
		if err := sleep(ctx, turn.Delay); err != nil {
			return err
		}
		chunks := turn.Chunks
		if len(chunks) == 0 {
			chunks = chunkText(turn.Text, 10)
		}
		for i, chunk := range chunks {
			if i > 0 {
				if err := sleep(ctx, turn.ChunkDelay); err != nil {
					return err
				}
			}
			if !emit(chunk) {
				return ctx.Err()
			}
		}
		return turn.Err
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// chunkText splits text into chunks of approximately the given size,
// breaking at spaces when possible.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}
		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1
				break
			}
		}
		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}

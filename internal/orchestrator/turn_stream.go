package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/session"
	"github.com/samsaffron/chatstream/internal/store"
	"github.com/samsaffron/chatstream/internal/usage"
)

// TurnStream passes increments through from the backend and records them.
// When the backend reports the end of its output the concatenated text is
// persisted as the assistant turn, exactly once. A stream abandoned before
// the end persists nothing.
type TurnStream struct {
	inner       llm.Stream
	coordinator *Coordinator

	sessionKey  string
	convID      int64
	backend     string
	model       string
	promptChars int
	started     time.Time

	mu         sync.Mutex
	buf        strings.Builder
	increments int
	persisted  sync.Once
	done       bool
}

var _ llm.Stream = (*TurnStream)(nil)

func (s *TurnStream) Recv() (string, error) {
	piece, err := s.inner.Recv()
	if errors.Is(err, io.EOF) {
		s.persisted.Do(s.persist)
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.buf.WriteString(piece)
	s.increments++
	s.mu.Unlock()
	return piece, nil
}

func (s *TurnStream) Close() error {
	return s.inner.Close()
}

// Text returns what has been received so far.
func (s *TurnStream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Done reports whether the assistant turn has been persisted.
func (s *TurnStream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *TurnStream) persist() {
	c := s.coordinator
	full := s.Text()

	c.sessions.Append(s.sessionKey, session.RoleAssistant, full)
	if err := c.store.AddMessage(context.Background(), &store.Message{
		ConversationID: s.convID,
		Role:           store.RoleAssistant,
		Content:        full,
	}); err != nil {
		c.logger.Error("persist assistant turn failed", "chat", s.convID, "err", err)
	}

	s.mu.Lock()
	s.done = true
	increments := s.increments
	s.mu.Unlock()

	elapsed := c.now().Sub(s.started)
	c.logger.Debug("assistant turn persisted",
		"session", s.sessionKey, "chat", s.convID, "increments", increments,
		"chars", len(full), "elapsed", elapsed)

	if c.usage == nil {
		return
	}
	if err := c.usage.Log(usage.LogEntry{
		Timestamp:      c.now(),
		SessionKey:     s.sessionKey,
		ConversationID: s.convID,
		Backend:        s.backend,
		Model:          s.model,
		PromptChars:    s.promptChars,
		OutputChars:    len(full),
		Increments:     increments,
		DurationMs:     elapsed.Milliseconds(),
	}); err != nil {
		c.logger.Warn("usage log failed", "err", err)
	}
}

// Complete runs a turn and reads it to the end.
func (c *Coordinator) Complete(ctx context.Context, req StreamRequest) (*Result, string, error) {
	res, err := c.Stream(ctx, req)
	if err != nil {
		return nil, "", err
	}
	text, err := llm.Collect(res.Stream)
	if err != nil {
		return res, text, err
	}
	return res, text, nil
}

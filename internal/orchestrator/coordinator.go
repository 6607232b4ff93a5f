// Package orchestrator runs a chat turn: it picks a backend, resolves the
// conversation, composes the prompt from session state, retrieval and
// history, persists the user turn and hands back a stream that persists
// the assistant turn once it has been read to the end.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/retrieval"
	"github.com/samsaffron/chatstream/internal/session"
	"github.com/samsaffron/chatstream/internal/store"
	"github.com/samsaffron/chatstream/internal/usage"
)

const (
	DefaultHistoryTurns = 10
	DefaultTemperature  = 0.3
)

// ErrConversationNotFound is returned for an explicit conversation id the
// store does not know.
var ErrConversationNotFound = errors.New("conversation not found")

// Retriever finds snippets relevant to a prompt. It never fails.
type Retriever interface {
	Query(ctx context.Context, key, text string, k int) []retrieval.Snippet
}

// UsageRecorder receives one entry per completed assistant turn.
type UsageRecorder interface {
	Log(entry usage.LogEntry) error
}

type Options struct {
	Registry  *llm.Registry
	Sessions  *session.Store
	Store     store.Store
	Retriever Retriever     // optional
	Usage     UsageRecorder // optional
	Logger    *log.Logger   // optional

	// System is the persona text sent in the backend's system role.
	System       string
	HistoryTurns int
	RetrievalK   int
}

type Coordinator struct {
	registry     *llm.Registry
	sessions     *session.Store
	store        store.Store
	retriever    Retriever
	usage        UsageRecorder
	logger       *log.Logger
	system       string
	historyTurns int
	retrievalK   int
	now          func() time.Time
}

func New(opts Options) (*Coordinator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("orchestrator: registry is required")
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewStore(session.DefaultMaxHistory)
	}
	if opts.Store == nil {
		opts.Store = &store.NoopStore{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = retrieval.DefaultK
	}
	return &Coordinator{
		registry:     opts.Registry,
		sessions:     opts.Sessions,
		store:        opts.Store,
		retriever:    opts.Retriever,
		usage:        opts.Usage,
		logger:       opts.Logger.WithPrefix("orchestrator"),
		system:       opts.System,
		historyTurns: opts.HistoryTurns,
		retrievalK:   opts.RetrievalK,
		now:          time.Now,
	}, nil
}

// StreamRequest is one user turn. ConversationID 0 means none was given.
type StreamRequest struct {
	SessionKey     string
	Prompt         string
	ConversationID int64
	Backend        string
	Model          string
	Temperature    float64
}

// Result is available before any increment is read.
type Result struct {
	ConversationID int64
	Backend        string
	Model          string
	// Title is set when this turn named the conversation.
	Title  string
	Stream *TurnStream
}

// Stream runs a turn up to the point where the assistant starts
// generating. Generation itself is not tied to ctx: a caller that goes
// away does not stop it, and the assistant turn is persisted once the
// returned stream is drained.
func (c *Coordinator) Stream(ctx context.Context, req StreamRequest) (*Result, error) {
	src, backend, model := c.selectBackend(req)

	convID, err := c.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}
	title := c.assignTitle(ctx, convID, req.Prompt)

	effective := Compose(PromptInput{
		Prompt:     req.Prompt,
		RawContext: c.sessions.Context(req.SessionKey),
		Snippets:   c.snippets(ctx, req),
		History:    c.history(ctx, req.SessionKey, convID),
	})

	if err := c.store.AddMessage(ctx, &store.Message{
		ConversationID: convID,
		Role:           store.RoleUser,
		Content:        req.Prompt,
	}); err != nil {
		if req.ConversationID == 0 {
			if derr := c.store.DeleteConversation(ctx, convID); derr != nil {
				c.logger.Warn("remove empty conversation failed", "chat", convID, "err", derr)
			}
		}
		return nil, fmt.Errorf("persist user turn: %w", err)
	}
	c.sessions.Append(req.SessionKey, session.RoleUser, req.Prompt)

	c.logger.Debug("starting generation",
		"session", req.SessionKey, "chat", convID, "backend", backend, "model", model,
		"promptChars", len(effective))

	inner := src.Stream(context.WithoutCancel(ctx), llm.Request{
		Prompt:      effective,
		System:      c.system,
		Model:       model,
		Temperature: req.Temperature,
	})

	return &Result{
		ConversationID: convID,
		Backend:        backend,
		Model:          model,
		Title:          title,
		Stream: &TurnStream{
			inner:       inner,
			coordinator: c,
			sessionKey:  req.SessionKey,
			convID:      convID,
			backend:     backend,
			model:       model,
			promptChars: len(effective),
			started:     c.now(),
		},
	}, nil
}

// selectBackend applies request > session preference > default. A
// preferred model only applies when its backend is the one selected.
func (c *Coordinator) selectBackend(req StreamRequest) (llm.TokenSource, string, string) {
	prefBackend, prefModel := c.sessions.Preferences(req.SessionKey)

	requested := req.Backend
	if requested == "" {
		requested = prefBackend
	}
	src, backend := c.registry.Resolve(requested)

	model := req.Model
	if model == "" && prefModel != "" {
		if _, prefKey := c.registry.Resolve(prefBackend); prefKey == backend {
			model = prefModel
		}
	}
	if model == "" {
		model = src.DefaultModel()
	}
	return src, backend, model
}

func (c *Coordinator) resolveConversation(ctx context.Context, req StreamRequest) (int64, error) {
	if req.ConversationID == 0 {
		conv, err := c.store.CreateConversation(ctx, req.SessionKey, store.DefaultTitle)
		if err != nil {
			return 0, fmt.Errorf("create conversation: %w", err)
		}
		return conv.ID, nil
	}
	if store.IsEphemeral(c.store) {
		return req.ConversationID, nil
	}
	if _, err := c.store.GetConversation(ctx, req.ConversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %d", ErrConversationNotFound, req.ConversationID)
		}
		return 0, fmt.Errorf("load conversation: %w", err)
	}
	return req.ConversationID, nil
}

// assignTitle names the conversation on its first turn. Two first turns
// racing on one conversation may both set it; the last one wins.
func (c *Coordinator) assignTitle(ctx context.Context, convID int64, prompt string) string {
	n, err := c.store.CountMessages(ctx, convID)
	if err != nil {
		c.logger.Warn("count messages failed", "chat", convID, "err", err)
		return ""
	}
	if n != 0 {
		return ""
	}
	title := DeriveTitle(prompt)
	if err := c.store.SetTitle(ctx, convID, title); err != nil {
		c.logger.Warn("set title failed", "chat", convID, "err", err)
		return ""
	}
	return title
}

func (c *Coordinator) snippets(ctx context.Context, req StreamRequest) []retrieval.Snippet {
	if c.retriever == nil {
		return nil
	}
	return c.retriever.Query(ctx, req.SessionKey, req.Prompt, c.retrievalK)
}

// history prefers the persisted conversation and falls back to the
// session's in-memory turns when the store keeps nothing.
func (c *Coordinator) history(ctx context.Context, sessionKey string, convID int64) []HistoryLine {
	if !store.IsEphemeral(c.store) {
		msgs, err := c.store.Messages(ctx, convID, c.historyTurns)
		if err != nil {
			c.logger.Warn("load history failed", "chat", convID, "err", err)
			return nil
		}
		lines := make([]HistoryLine, len(msgs))
		for i, m := range msgs {
			lines[i] = HistoryLine{Role: string(m.Role), Content: m.Content}
		}
		return lines
	}
	turns := c.sessions.History(sessionKey, c.historyTurns)
	lines := make([]HistoryLine, len(turns))
	for i, t := range turns {
		lines[i] = HistoryLine{Role: string(t.Role), Content: t.Content}
	}
	return lines
}

// Sessions exposes the session state the coordinator owns.
func (c *Coordinator) Sessions() *session.Store { return c.sessions }

// Registry exposes the backend registry.
func (c *Coordinator) Registry() *llm.Registry { return c.registry }

// Store exposes the persisted store.
func (c *Coordinator) Store() store.Store { return c.store }

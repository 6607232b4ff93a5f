package store

import (
	"context"
	"sync/atomic"
	"time"
)

// NoopStore is used when storage is disabled. It hands out conversation
// ids so callers can still address a chat, and discards everything else.
type NoopStore struct {
	nextID atomic.Int64
}

var _ Store = (*NoopStore)(nil)

func (s *NoopStore) Ephemeral() bool { return true }

func (s *NoopStore) CreateConversation(ctx context.Context, sessionKey, title string) (*Conversation, error) {
	now := time.Now().UTC()
	return &Conversation{
		ID:         s.nextID.Add(1),
		SessionKey: sessionKey,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *NoopStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	return nil, ErrNotFound
}

func (s *NoopStore) ListConversations(ctx context.Context, sessionKey string) ([]Conversation, error) {
	return nil, nil
}

func (s *NoopStore) DeleteConversation(ctx context.Context, id int64) error {
	return nil
}

func (s *NoopStore) SetTitle(ctx context.Context, id int64, title string) error {
	return nil
}

func (s *NoopStore) CountMessages(ctx context.Context, id int64) (int, error) {
	return 0, nil
}

func (s *NoopStore) AddMessage(ctx context.Context, msg *Message) error {
	return nil
}

func (s *NoopStore) Messages(ctx context.Context, id int64, last int) ([]Message, error) {
	return nil, nil
}

func (s *NoopStore) Search(ctx context.Context, sessionKey, query string, limit int) ([]SearchResult, error) {
	return nil, nil
}

func (s *NoopStore) Close() error {
	return nil
}

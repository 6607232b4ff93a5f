// Package store persists conversations and their messages.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("not found")

// DefaultTitle is the placeholder title of a new conversation.
const DefaultTitle = "New chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Conversation struct {
	ID           int64     `json:"id"`
	SessionKey   string    `json:"session_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"chat_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchResult is a message matching a full-text query.
type SearchResult struct {
	ConversationID int64     `json:"chat_id"`
	MessageID      int64     `json:"message_id"`
	Title          string    `json:"title"`
	Role           Role      `json:"role"`
	Snippet        string    `json:"snippet"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the persisted conversation store.
type Store interface {
	CreateConversation(ctx context.Context, sessionKey, title string) (*Conversation, error)
	// GetConversation returns ErrNotFound for unknown ids.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// ListConversations returns the session's conversations, newest first.
	ListConversations(ctx context.Context, sessionKey string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	SetTitle(ctx context.Context, id int64, title string) error
	CountMessages(ctx context.Context, id int64) (int, error)
	AddMessage(ctx context.Context, msg *Message) error
	// Messages returns messages oldest first. When last > 0 only the
	// most recent last messages are returned.
	Messages(ctx context.Context, id int64, last int) ([]Message, error)
	Search(ctx context.Context, sessionKey, query string, limit int) ([]SearchResult, error)
	Close() error
}

// IsEphemeral reports whether s discards what it is given, in which case
// callers should keep their own history.
func IsEphemeral(s Store) bool {
	e, ok := s.(interface{ Ephemeral() bool })
	return ok && e.Ephemeral()
}

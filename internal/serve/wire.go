package serve

import (
	"errors"
	"strings"

	"github.com/samsaffron/chatstream/internal/orchestrator"
	"github.com/samsaffron/chatstream/internal/session"
	"github.com/samsaffron/chatstream/internal/store"
)

// TurnRequest is the body of a stream or message request, and the frame a
// websocket client sends to start a turn.
type TurnRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	Model       string   `json:"model,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	ChatID      int64    `json:"chat_id,omitempty"`
}

const maxTemperature = 2.0

func (t TurnRequest) validate() error {
	if strings.TrimSpace(t.Prompt) == "" {
		return errors.New("prompt is required")
	}
	if t.Temperature != nil && (*t.Temperature < 0 || *t.Temperature > maxTemperature) {
		return errors.New("temperature must be between 0 and 2")
	}
	return nil
}

func (t TurnRequest) streamRequest(sessionKey string, defaultTemperature float64) orchestrator.StreamRequest {
	temperature := defaultTemperature
	if t.Temperature != nil {
		temperature = *t.Temperature
	}
	return orchestrator.StreamRequest{
		SessionKey:     sessionKey,
		Prompt:         t.Prompt,
		ConversationID: t.ChatID,
		Backend:        t.Provider,
		Model:          t.Model,
		Temperature:    temperature,
	}
}

// WireEvent is the JSON envelope sent server->client over a websocket.
type WireEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type MessageResponse struct {
	Text    string `json:"text"`
	ChatID  int64  `json:"chatId"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

type Preferences struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	History   []session.Turn `json:"history"`
}

type ChatsResponse struct {
	Chats []store.Conversation `json:"chats"`
}

type CreateChatRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type MessagesResponse struct {
	Chat     *store.Conversation `json:"chat"`
	Messages []store.Message     `json:"messages"`
}

type SearchResponse struct {
	Query   string               `json:"query"`
	Results []store.SearchResult `json:"results"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
	Chars    int    `json:"chars"`
	Indexed  bool   `json:"indexed"`
}

type HealthResponse struct {
	Status   string   `json:"status"`
	Default  string   `json:"default_backend"`
	Backends []string `json:"backends"`
}

package serve

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/samsaffron/chatstream/internal/store"
)

const defaultSearchLimit = 20

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.coordinator.Store().ListConversations(r.Context(), sessionKey(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if chats == nil {
		chats = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, ChatsResponse{Chats: chats})
}

// handleCreateChat starts a fresh conversation. Uploaded context belongs to
// the conversation it was uploaded for, so it is dropped here.
func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := strings.TrimSpace(req.SessionID)
	if key == "" {
		key = sessionKey(r)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = store.DefaultTitle
	}

	conv, err := s.coordinator.Store().CreateConversation(r.Context(), key, title)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.clearContext(key)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.coordinator.Store().DeleteConversation(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "id": id})
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st := s.coordinator.Store()
	conv, err := st.GetConversation(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	msgs, err := st.Messages(r.Context(), id, 0)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Chat: conv, Messages: msgs})
}

func (s *Server) handleSearchChats(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	results, err := s.coordinator.Store().Search(r.Context(), sessionKey(r), q, limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

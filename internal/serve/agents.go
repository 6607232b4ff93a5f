package serve

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/sse"
)

func (s *Server) decodeTurn(w http.ResponseWriter, r *http.Request) (TurnRequest, bool) {
	var req TurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}

	res, err := s.coordinator.Stream(r.Context(), req.streamRequest(sessionKey(r), s.temperature))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	emitter, err := sse.NewWriter(w)
	if err != nil {
		// The turn has started; drain it so the assistant reply is kept.
		go llm.Collect(res.Stream)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := s.bridge.Run(r.Context(), sse.RunRequest{
		Start: sse.StartInfo{ChatID: res.ConversationID, Backend: res.Backend, Model: res.Model},
		Open: func() (llm.Stream, error) {
			return res.Stream, nil
		},
		Emitter: emitter,
	})
	s.logger.Debug("stream finished",
		"request_id", out.RequestID, "chat", res.ConversationID,
		"chars", len(out.Text), "disconnected", out.Disconnected)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTurn(w, r)
	if !ok {
		return
	}
	res, text, err := s.coordinator.Complete(r.Context(), req.streamRequest(sessionKey(r), s.temperature))
	if err != nil && res == nil {
		s.writeStoreError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("message interrupted", "chat", res.ConversationID, "err", err)
	}
	writeJSON(w, http.StatusOK, MessageResponse{
		Text:    text,
		ChatID:  res.ConversationID,
		Backend: res.Backend,
		Model:   res.Model,
	})
}

// effectivePreferences reports what a request without overrides would use.
func (s *Server) effectivePreferences(key string) Preferences {
	backend, model := s.coordinator.Sessions().Preferences(key)
	src, resolved := s.coordinator.Registry().Resolve(backend)
	if model == "" || resolved != strings.ToLower(strings.TrimSpace(backend)) {
		model = src.DefaultModel()
	}
	return Preferences{Provider: resolved, Model: model}
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.effectivePreferences(sessionKey(r)))
}

func (s *Server) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs Preferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	registry := s.coordinator.Registry()
	provider := strings.ToLower(strings.TrimSpace(prefs.Provider))
	if !registry.Has(provider) {
		writeError(w, http.StatusBadRequest, "unknown provider "+strconv.Quote(prefs.Provider))
		return
	}
	key := sessionKey(r)
	s.coordinator.Sessions().SetPreferences(key, provider, strings.TrimSpace(prefs.Model))
	writeJSON(w, http.StatusOK, s.effectivePreferences(key))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	key := sessionKey(r)
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: key,
		History:   s.coordinator.Sessions().History(key, limit),
	})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.coordinator.Sessions().ClearHistory(sessionKey(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

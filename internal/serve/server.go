// Package serve exposes the chat orchestrator over HTTP: streaming turns as
// server-sent events or over a websocket, session preferences and history,
// persisted conversations, and uploaded context.
package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/samsaffron/chatstream/internal/config"
	"github.com/samsaffron/chatstream/internal/orchestrator"
	"github.com/samsaffron/chatstream/internal/sse"
	"github.com/samsaffron/chatstream/internal/store"
)

const (
	defaultSessionKey = "default"
	maxBodyBytes      = 1 << 20
	maxUploadBytes    = 10 << 20
	shutdownTimeout   = 10 * time.Second
)

// Indexer receives uploaded context for retrieval.
type Indexer interface {
	Upsert(ctx context.Context, key, text string) bool
	Clear(key string)
}

type Options struct {
	Config config.ServerConfig
	// Temperature applies when a request does not carry one.
	Temperature float64
	Coordinator *orchestrator.Coordinator
	Bridge      *sse.Bridge
	Index       Indexer
	Metrics     *Metrics
	Logger      *log.Logger
}

type Server struct {
	cfg         config.ServerConfig
	temperature float64
	coordinator *orchestrator.Coordinator
	bridge      *sse.Bridge
	index       Indexer
	metrics     *Metrics
	logger      *log.Logger

	server *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Coordinator == nil {
		return nil, errors.New("serve: coordinator is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Bridge == nil {
		opts.Bridge = sse.NewBridge(sse.Options{
			QueueSize:     opts.Config.QueueSize,
			Heartbeat:     opts.Config.Heartbeat,
			MaxConcurrent: int64(opts.Config.MaxConcurrentStreams),
			Logger:        opts.Logger,
			Observer:      opts.Metrics,
		})
	}
	return &Server{
		cfg:         opts.Config,
		temperature: opts.Temperature,
		coordinator: opts.Coordinator,
		bridge:      opts.Bridge,
		index:       opts.Index,
		metrics:     opts.Metrics,
		logger:      opts.Logger.WithPrefix("serve"),
	}, nil
}

// Handler returns the full route table wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/agents/stream", s.auth(s.handleStream))
	mux.HandleFunc("POST /api/agents/message", s.auth(s.handleMessage))
	mux.HandleFunc("GET /api/agents/preferences", s.auth(s.handleGetPreferences))
	mux.HandleFunc("POST /api/agents/preferences", s.auth(s.handleSetPreferences))
	mux.HandleFunc("GET /api/agents/history", s.auth(s.handleHistory))
	mux.HandleFunc("DELETE /api/agents/history", s.auth(s.handleClearHistory))
	mux.HandleFunc("GET /api/agents/ws", s.auth(s.handleWebSocket))

	mux.HandleFunc("GET /api/chats", s.auth(s.handleListChats))
	mux.HandleFunc("POST /api/chats", s.auth(s.handleCreateChat))
	mux.HandleFunc("GET /api/chats/search", s.auth(s.handleSearchChats))
	mux.HandleFunc("DELETE /api/chats/{id}", s.auth(s.handleDeleteChat))
	mux.HandleFunc("GET /api/chats/{id}/messages", s.auth(s.handleChatMessages))

	mux.HandleFunc("POST /api/files/upload", s.auth(s.handleUpload))
	mux.HandleFunc("DELETE /api/files/clear", s.auth(s.handleClearFiles))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.instrument(s.cors(mux))
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return "", fmt.Errorf("bind to %s: %w", s.cfg.Addr, err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", "err", err)
		}
	}()
	addr := listener.Addr().String()
	s.logger.Info("listening", "addr", addr)
	return addr, nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.server.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	registry := s.coordinator.Registry()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Default:  registry.Default(),
		Backends: registry.Keys(),
	})
}

func sessionKey(r *http.Request) string {
	if key := strings.TrimSpace(r.URL.Query().Get("session_id")); key != "" {
		return key
	}
	return defaultSessionKey
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid chat id %q", r.PathValue("id"))
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeStoreError maps store and coordinator failures onto status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, orchestrator.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "chat not found")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

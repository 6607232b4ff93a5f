package serve

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/sse"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = maxBodyBytes
	wsPendingTurns = 8
)

// wsEmitter delivers bridge events as JSON text frames. Heartbeats are
// websocket pings.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ sse.Emitter = (*wsEmitter)(nil)

func (e *wsEmitter) Event(name string, payload any) error {
	data, err := sse.Marshal(WireEvent{Event: name, Data: payload})
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return e.conn.WriteMessage(websocket.TextMessage, data)
}

func (e *wsEmitter) Heartbeat() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (e *wsEmitter) fail(message string) {
	_ = e.Event(sse.EventError, map[string]string{"message": message})
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// handleWebSocket runs turns for one socket, one at a time, in the order
// the client sends them. Closing the socket is the disconnect signal for
// the turn in flight.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrade(w, r)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	key := sessionKey(r)
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	readCh := make(chan TurnRequest, wsPendingTurns)
	go func() {
		defer close(readCh)
		defer cancel()
		for {
			var req TurnRequest
			if err := conn.ReadJSON(&req); err != nil {
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					s.logger.Debug("websocket read ended", "session", key, "err", err)
				}
				return
			}
			readCh <- req
		}
	}()

	em := &wsEmitter{conn: conn}
	for req := range readCh {
		if ctx.Err() != nil {
			continue
		}
		s.runSocketTurn(ctx, key, em, req)
	}
}

func (s *Server) runSocketTurn(ctx context.Context, key string, em *wsEmitter, req TurnRequest) {
	if err := req.validate(); err != nil {
		em.fail(err.Error())
		return
	}
	res, err := s.coordinator.Stream(ctx, req.streamRequest(key, s.temperature))
	if err != nil {
		s.logger.Warn("websocket turn rejected", "session", key, "err", err)
		em.fail(err.Error())
		return
	}
	s.bridge.Run(ctx, sse.RunRequest{
		Start: sse.StartInfo{ChatID: res.ConversationID, Backend: res.Backend, Model: res.Model},
		Open: func() (llm.Stream, error) {
			return res.Stream, nil
		},
		Emitter: em,
	})
}

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/orchestrator/internal/sessions"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 15 * time.Second
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64
)

// wsInbound is the decoded shape of every inbound client frame. Only one
// of Message/Type is set per frame: an unlabeled "message" field means a
// new user turn, otherwise Type selects heartbeat/sync_request/
// history_request. IdempotencyKey lets a client retry a send safely: a
// repeated key within the connection's lifetime returns the cached
// result instead of re-running the turn.
type wsInbound struct {
	Message        string `json:"message"`
	Type           string `json:"type"`
	LastMessageID  int64  `json:"lastMessageId"`
	Limit          int    `json:"limit"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// wsControlPlane upgrades /ws/{session_id} connections and fans each
// session's runner output to exactly one active client: a per-connection
// buffered send queue, ping/pong keepalive, and idempotency-key dedup on
// inbound turns.
type wsControlPlane struct {
	srv      *Server
	upgrader websocket.Upgrader
}

func (s *Server) newWSControlPlane() *wsControlPlane {
	return &wsControlPlane{
		srv: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (wcp *wsControlPlane) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if sessionID == "" {
		sessionID = strings.TrimPrefix(r.URL.Path, "/ws/")
	}
	if sessionID == "" {
		http.Error(rw, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := wcp.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}

	runner := wcp.srv.Sessions.GetOrCreate(sessionID)
	ctx, cancel := context.WithCancel(context.Background())
	sess := &wsSession{
		sessionID: sessionID,
		conn:      conn,
		runner:    runner,
		send:      make(chan any, wsSendBuffer),
		ctx:       ctx,
		cancel:    cancel,
		idemSeen:  map[string][]any{},
	}
	runner.SetBroadcaster(sess)
	defer runner.SetBroadcaster(nil)

	go sess.writeLoop()
	sess.readLoop() // blocks until the client disconnects or the context is canceled
}

// wsSession is one live WebSocket connection bound to a session runner.
// It implements sessions.Broadcaster so the runner can push turn events
// to it directly; Send enqueues onto a per-connection buffered channel
// so broadcasts from the runner never block on a slow client (spec
// so broadcasts never block waiting on a slow client). Client disconnect
// cancels ctx, which the runner's in-flight HandleTurn call observes via
// context cancellation.
type wsSession struct {
	sessionID string
	conn      *websocket.Conn
	runner    *sessions.Runner
	send      chan any
	ctx       context.Context
	cancel    context.CancelFunc

	idemMu   sync.Mutex
	idemSeen map[string][]any
}

// Send implements sessions.Broadcaster.
func (s *wsSession) Send(_ string, frame any) error {
	s.enqueue(frame)
	return nil
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *wsSession) readLoop() {
	defer s.cancel()

	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return // client disconnect; ctx cancellation unblocks any in-flight turn
		}
		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.enqueueStatus("malformed frame")
			continue
		}
		s.handleInbound(in)
	}
}

func (s *wsSession) handleInbound(in wsInbound) {
	switch in.Type {
	case "heartbeat":
		s.enqueue(map[string]any{"type": "heartbeat"})
	case "sync_request":
		turns := s.runner.SyncSince(in.LastMessageID)
		s.enqueue(map[string]any{"type": "sync_response", "messages": turns})
	case "history_request":
		turns := s.runner.History(in.Limit)
		s.enqueue(map[string]any{"type": "history", "messages": turns})
	case "":
		if in.Message == "" {
			return
		}
		s.handleUserTurn(in.Message, in.IdempotencyKey)
	default:
		s.enqueueStatus("unrecognized frame type: " + in.Type)
	}
}

func (s *wsSession) handleUserTurn(message, idempotencyKey string) {
	if idempotencyKey != "" {
		if cached, dup := s.idempotencyLookup(idempotencyKey); dup {
			for _, frame := range cached {
				s.enqueue(frame)
			}
			return
		}
	}

	s.enqueue(map[string]any{"type": "status", "content": "thinking"})
	result, err := s.runner.HandleTurn(s.ctx, message)
	if err != nil {
		s.enqueueStatus(err.Error())
		return
	}

	frames := []any{map[string]any{"type": "message", "content": result.Response}}
	if idempotencyKey != "" {
		s.idempotencyStore(idempotencyKey, frames)
	}
	for _, frame := range frames {
		s.enqueue(frame)
	}
}

// idempotencyLookup reports whether key has already been handled on
// this connection.
func (s *wsSession) idempotencyLookup(key string) ([]any, bool) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	cached, ok := s.idemSeen[key]
	return cached, ok
}

func (s *wsSession) idempotencyStore(key string, frames []any) {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	s.idemSeen[key] = frames
}

func (s *wsSession) enqueueStatus(content string) {
	s.enqueue(map[string]any{"type": "status", "content": content})
}

func (s *wsSession) enqueue(frame any) {
	select {
	case s.send <- frame:
	default:
		// buffer full: drop rather than block the runner's broadcast path.
	}
}

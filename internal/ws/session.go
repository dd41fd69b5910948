// Package ws serves the live channel: one WebSocket connection per
// client session, carrying room subscriptions, typing relays and
// message-received pushes.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the deadline for a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod to keep it fed.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer bounds the per-session outbound queue. A session that
	// falls this far behind is dropped rather than allowed to stall
	// broadcasts.
	sendBuffer = 64

	maxFrameSize = 64 * 1024
)

// errSessionClosed is returned by Send once the session is torn down.
var errSessionClosed = errors.New("session closed")

// session is one live connection. It satisfies room.Session: the
// registry delivers broadcasts through Send, which hands the payload to
// the write pump without blocking.
type session struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool

	teardown sync.Once
	handler  *Handler
	logger   *zap.Logger
}

func newSession(h *Handler, conn *websocket.Conn, userID string) *session {
	s := &session{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		handler: h,
	}
	s.logger = h.logger.With(
		zap.String("session_id", s.id),
		zap.String("user_id", userID),
	)
	return s
}

// ID returns the session's unique identifier.
func (s *session) ID() string { return s.id }

// Send queues a payload for delivery. It never blocks: a full queue or
// a closed session returns an error, which tells the registry to drop
// this session from the room.
func (s *session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return errors.New("send queue full")
	}
}

// close marks the session dead, removes it from every room, and closes
// the underlying connection. Safe to call from either pump; only the
// first call does the work.
func (s *session) close() {
	s.teardown.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()

		s.handler.rooms.RemoveSession(s)
		s.handler.forget(s.id)
		_ = s.conn.Close()
		s.logger.Info("session closed")
	})
}

// clientFrame is the inbound wire frame. Data stays raw until the event
// name picks the shape to decode it into.
type clientFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomFrame struct {
	ChatID string `json:"chatId"`
}

type typingFrame struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Typing bool   `json:"isTyping"`
}

// readPump consumes inbound frames until the connection errors or the
// peer goes silent past pongWait. It owns all reads on the connection.
func (s *session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", zap.Error(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("malformed frame", zap.Error(err))
			continue
		}
		s.handler.dispatch(s, &frame)
	}
}

// writePump drains the send queue to the connection and keeps the peer
// alive with periodic pings. It owns all writes on the connection.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

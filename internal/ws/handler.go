package ws

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/room"
	"github.com/matheus3301/chatd/internal/store"
)

// Client-originated live-channel event names.
const (
	eventJoinRoom  = "join-room"
	eventLeaveRoom = "leave-room"
	eventTyping    = "typing"
)

// Handler upgrades authenticated HTTP requests to live sessions and
// routes their inbound events. It tracks every open session so the
// daemon can close them on shutdown; http.Server.Shutdown never
// touches hijacked connections.
type Handler struct {
	db       *store.DB
	rooms    *room.Registry
	tracker  *presence.Tracker
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHandler creates a live-channel handler. allowedOrigins lists the
// browser origins permitted to connect; empty means same-host only,
// which is gorilla's default check.
func NewHandler(db *store.DB, rooms *room.Registry, tracker *presence.Tracker, verifier *auth.Verifier, allowedOrigins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		db:       db,
		rooms:    rooms,
		tracker:  tracker,
		verifier: verifier,
		logger:   logger,
		sessions: make(map[string]*session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// ServeHTTP authenticates the request via the token query parameter and
// upgrades it to a WebSocket session. The token goes in the query
// because browsers cannot set headers on WebSocket handshakes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := newSession(h, conn, identity.UserID)
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.tracker.Touch(identity.UserID)
	s.logger.Info("session opened", zap.String("remote_addr", r.RemoteAddr))

	go s.writePump()
	go s.readPump()
}

// Shutdown closes every open session. Each one is detached from the
// registry and its connection closed before this returns.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	open := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close()
	}
	h.logger.Info("live sessions closed", zap.Int("count", len(open)))
}

func (h *Handler) forget(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// dispatch handles one inbound frame from a session. Every frame counts
// as user activity. Bad frames are logged and dropped; they never kill
// the connection.
func (h *Handler) dispatch(s *session, frame *clientFrame) {
	h.tracker.Touch(s.userID)

	switch frame.Event {
	case eventJoinRoom:
		h.handleJoin(s, frame)
	case eventLeaveRoom:
		h.handleLeave(s, frame)
	case eventTyping:
		h.handleTyping(s, frame)
	default:
		s.logger.Warn("unknown event", zap.String("event", frame.Event))
	}
}

// handleJoin subscribes the session to a chat's room after checking
// that the chat exists and the user belongs to it. Membership is
// checked once here; the registry trusts it afterwards.
func (h *Handler) handleJoin(s *session, frame *clientFrame) {
	var req roomFrame
	if err := decodeFrame(frame, &req); err != nil {
		s.logger.Warn("bad join-room frame", zap.Error(err))
		return
	}

	chat, err := h.db.GetChat(req.ChatID)
	if err != nil {
		s.logger.Error("join-room chat lookup failed", zap.Error(err))
		return
	}
	if chat == nil || !slices.Contains(chat.ParticipantIDs, s.userID) {
		s.logger.Warn("join-room refused", zap.String("chat_id", req.ChatID))
		return
	}

	if err := h.rooms.Subscribe(req.ChatID, s); err != nil {
		s.logger.Warn("join-room rejected", zap.String("chat_id", req.ChatID), zap.Error(err))
		return
	}
	s.logger.Info("joined room", zap.String("chat_id", req.ChatID))
}

func (h *Handler) handleLeave(s *session, frame *clientFrame) {
	var req roomFrame
	if err := decodeFrame(frame, &req); err != nil {
		s.logger.Warn("bad leave-room frame", zap.Error(err))
		return
	}
	h.rooms.Unsubscribe(req.ChatID, s)
	s.logger.Info("left room", zap.String("chat_id", req.ChatID))
}

// handleTyping relays a typing indicator to the other members of the
// room. It is ephemeral: nothing is persisted, and the sender is
// excluded from the relay.
func (h *Handler) handleTyping(s *session, frame *clientFrame) {
	var req typingFrame
	if err := decodeFrame(frame, &req); err != nil {
		s.logger.Warn("bad typing frame", zap.Error(err))
		return
	}
	req.UserID = s.userID

	payload, err := room.Marshal(room.EventUserTyping, req)
	if err != nil {
		s.logger.Error("encode typing relay", zap.Error(err))
		return
	}
	h.rooms.Broadcast(req.ChatID, payload, s)
}

func decodeFrame(frame *clientFrame, into any) error {
	return json.Unmarshal(frame.Data, into)
}

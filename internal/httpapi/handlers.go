// Package httpapi exposes the request/response surface: message send
// and history, chat management, the user directory, identity webhooks,
// and the live-channel upgrade endpoint.
package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/store"
)

const maxBodySize = 256 * 1024

// Server holds the API's dependencies and builds its router.
type Server struct {
	db            *store.DB
	engine        *delivery.Engine
	tracker       *presence.Tracker
	verifier      *auth.Verifier
	live          http.Handler
	webhookSecret string
	pageSize      int
	origins       []string
	logger        *zap.Logger
}

// NewServer creates the API server. live serves the WebSocket upgrade;
// pageSize caps history and listing responses.
func NewServer(db *store.DB, engine *delivery.Engine, tracker *presence.Tracker, verifier *auth.Verifier, live http.Handler, webhookSecret string, pageSize int, origins []string, logger *zap.Logger) *Server {
	return &Server{
		db:            db,
		engine:        engine,
		tracker:       tracker,
		verifier:      verifier,
		live:          live,
		webhookSecret: webhookSecret,
		pageSize:      pageSize,
		origins:       origins,
		logger:        logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Post("/api/webhooks/identity", s.handleIdentityWebhook)
	r.Get("/ws", s.live.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/api/messages", s.handleSendMessage)
		r.Get("/api/messages", s.handleListMessages)
		r.Post("/api/messages/{id}/read", s.handleMarkRead)
		r.Post("/api/chats", s.handleCreateChat)
		r.Get("/api/chats", s.handleListChats)
		r.Get("/api/users", s.handleListUsers)
		r.Post("/api/users/activity", s.handleActivity)
	})
	return r
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	identity := identityFrom(r.Context())

	view, err := s.engine.Send(r.Context(), req.ChatID, identity.UserID, req.Content)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: view, Success: true})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	chatID := r.URL.Query().Get("chatId")

	limit := s.pageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = time.UnixMilli(ms)
	}

	msgs, err := s.engine.History(r.Context(), chatID, identity.UserID, limit, before)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if msgs == nil {
		msgs = []delivery.MessageView{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Success: true})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if err := s.engine.MarkRead(r.Context(), chi.URLParam(r, "id"), identity.UserID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	identity := identityFrom(r.Context())

	view, created, err := s.engine.CreateChat(r.Context(), identity.UserID, req.ParticipantIDs, req.Name, req.IsGroup)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	chats, err := s.engine.Chats(r.Context(), identity.UserID, s.pageSize)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	users, err := s.db.ListUsersExcept(identity.UserID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	entries := make([]directoryEntry, 0, len(users))
	for _, u := range users {
		entry := directoryEntry{
			ID:           u.ID,
			Email:        u.Email,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			FullName:     fullName(&u),
			ProfileImage: u.ProfileImage,
			IsOnline:     s.tracker.IsOnline(u.ID),
		}
		if last, ok := s.tracker.LastActive(u.ID); ok {
			utc := last.UTC()
			entry.LastActive = &utc
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	s.tracker.Touch(identity.UserID)
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

// handleIdentityWebhook receives profile pushes from the identity
// provider. The raw body is authenticated with an HMAC-SHA256 signature
// before any decoding.
func (s *Server) handleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !s.verifySignature(body, r.Header.Get("X-Webhook-Signature")) {
		writeError(w, http.StatusUnauthorized, "bad signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	switch event.Type {
	case "user.created", "user.updated":
		if event.Data.ID == "" {
			writeError(w, http.StatusBadRequest, "missing user id")
			return
		}
		u := &store.User{
			ID:           event.Data.ID,
			Email:        event.Data.Email,
			FirstName:    event.Data.FirstName,
			LastName:     event.Data.LastName,
			Username:     event.Data.Username,
			ProfileImage: event.Data.ProfileImage,
		}
		if err := s.db.UpsertUser(u); err != nil {
			s.logger.Error("webhook upsert failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "store failure")
			return
		}
		s.logger.Info("identity webhook applied",
			zap.String("type", event.Type),
			zap.String("user_id", event.Data.ID))
	default:
		s.logger.Info("identity webhook ignored", zap.String("type", event.Type))
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	users, err := s.db.UserCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	chats, err := s.db.ChatCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	messages, err := s.db.MessageCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Users:    users,
		Chats:    chats,
		Messages: messages,
	})
}

// writeEngineError maps engine errors to status codes. Anything outside
// the precondition kinds is a store failure: logged in full, reported
// as a plain 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, delivery.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, delivery.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, delivery.ErrChatNotFound), errors.Is(err, delivery.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func fullName(u *store.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

// Package delivery accepts message writes, records them durably, and
// fans them out to the live sessions subscribed to the owning chat.
package delivery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatd/internal/room"
	"github.com/matheus3301/chatd/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Engine owns write access to message and chat persistence. Sends go
// through here so that broadcast only ever happens after the message is
// durable, and never the other way around.
type Engine struct {
	db     *store.DB
	rooms  *room.Registry
	logger *zap.Logger
}

// NewEngine creates a delivery engine backed by the store and registry.
func NewEngine(db *store.DB, rooms *room.Registry, logger *zap.Logger) *Engine {
	return &Engine{db: db, rooms: rooms, logger: logger}
}

// Send persists a message from authorID to chatID and broadcasts the
// resulting view to every session currently subscribed to the chat,
// including the author's own sessions (their other devices need the
// echo; the returned view is the authoritative acknowledgment).
//
// Precondition failures return ErrInvalidInput, ErrChatNotFound or
// ErrForbidden with no side effects. A persistence failure aborts the
// request before any broadcast. Broadcast failures never fail the send.
func (e *Engine) Send(ctx context.Context, chatID, authorID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" || uuid.Validate(chatID) != nil {
		return nil, ErrInvalidInput
	}

	chat, err := e.db.GetChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if !slices.Contains(chat.ParticipantIDs, authorID) {
		return nil, ErrForbidden
	}

	now := time.Now().UnixMilli()
	msg := &store.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		UserID:    authorID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.db.CreateMessage(msg, truncate(content, previewLen)); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	author, err := e.db.GetUser(authorID)
	if err != nil {
		// The message is durable; ship the view without the snapshot.
		e.logger.Warn("author profile lookup failed", zap.String("user_id", authorID), zap.Error(err))
		author = nil
	}
	view := messageView(msg, author)

	payload, err := room.Marshal(room.EventMessageReceived, view)
	if err != nil {
		e.logger.Error("encode broadcast payload", zap.Error(err))
		return view, nil
	}
	e.rooms.Broadcast(chatID, payload, nil)

	return view, nil
}

// History returns up to limit messages of a chat in ascending
// chronological order, each with its author's profile snapshot. The
// before cursor pages backwards through older messages; a zero cursor
// applies no upper bound. Only chat participants may read history.
func (e *Engine) History(ctx context.Context, chatID, requesterID string, limit int, before time.Time) ([]MessageView, error) {
	if uuid.Validate(chatID) != nil {
		return nil, ErrInvalidInput
	}

	chat, err := e.db.GetChat(chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if !slices.Contains(chat.ParticipantIDs, requesterID) {
		return nil, ErrForbidden
	}

	var cursor int64
	if !before.IsZero() {
		cursor = before.UnixMilli()
	}
	msgs, err := e.db.ListMessages(chatID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// One author can own many messages in a page; fetch each once.
	authors := make(map[string]*store.User)
	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		author, ok := authors[msgs[i].UserID]
		if !ok {
			author, err = e.db.GetUser(msgs[i].UserID)
			if err != nil {
				return nil, fmt.Errorf("load author: %w", err)
			}
			authors[msgs[i].UserID] = author
		}
		views = append(views, *messageView(&msgs[i], author))
	}
	return views, nil
}

// MarkRead adds readerID to a message's read-by set. Only participants
// of the owning chat may mark its messages read.
func (e *Engine) MarkRead(ctx context.Context, messageID, readerID string) error {
	if uuid.Validate(messageID) != nil {
		return ErrInvalidInput
	}

	msg, err := e.db.GetMessage(messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return ErrMessageNotFound
	}

	chat, err := e.db.GetChat(msg.ChatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	if chat == nil || !slices.Contains(chat.ParticipantIDs, readerID) {
		return ErrForbidden
	}

	if err := e.db.MarkRead(messageID, readerID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

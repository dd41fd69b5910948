package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateChat inserts a chat and its participant set in one transaction.
// The caller assigns the ID and the participant list; both are immutable
// after this call.
func (db *DB) CreateChat(c *Chat) error {
	now := time.Now().UnixMilli()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chats (id, name, created_by, is_group, last_message, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', 0, ?, ?)`,
		c.ID, c.Name, c.CreatedBy, c.IsGroup, now, now); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for _, userID := range c.ParticipantIDs {
		if _, err := tx.Exec(`
			INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)`,
			c.ID, userID); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	return tx.Commit()
}

// GetChat returns a single chat by ID with its participant set loaded,
// or nil if absent.
func (db *DB) GetChat(id string) (*Chat, error) {
	c, err := db.scanChatRow(db.QueryRow(chatSelect+` WHERE c.id = ?`, id))
	if err != nil || c == nil {
		return nil, err
	}
	return c, nil
}

// FindDirectChat returns the non-group chat whose participant set is
// exactly {a, b}, or nil if none exists. The participant order does not
// matter, so creating the "same" direct chat twice resolves to one row.
func (db *DB) FindDirectChat(a, b string) (*Chat, error) {
	return db.scanChatRow(db.QueryRow(chatSelect+`
		WHERE c.is_group = 0
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = ?)
		  AND EXISTS (SELECT 1 FROM chat_participants WHERE chat_id = c.id AND user_id = ?)
		  AND (SELECT COUNT(*) FROM chat_participants WHERE chat_id = c.id) = 2`,
		a, b))
}

// ListChatsForUser returns the chats the user participates in, most
// recently active first.
func (db *DB) ListChatsForUser(userID string, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(chatSelect+`
		WHERE c.id IN (SELECT chat_id FROM chat_participants WHERE user_id = ?)
		ORDER BY c.last_message_at DESC, c.updated_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// ChatCount returns the number of chat records.
func (db *DB) ChatCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}

// chatSelect pulls the participant set alongside the chat row so list
// queries stay a single round trip.
const chatSelect = `
	SELECT c.id, c.name, c.created_by, c.is_group, c.last_message, c.last_message_at,
		c.created_at, c.updated_at,
		(SELECT GROUP_CONCAT(user_id) FROM chat_participants p WHERE p.chat_id = c.id)
	FROM chats c`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*Chat, error) {
	var c Chat
	var participants sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.IsGroup, &c.LastMessage,
		&c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt, &participants); err != nil {
		return nil, err
	}
	if participants.Valid && participants.String != "" {
		c.ParticipantIDs = strings.Split(participants.String, ",")
	}
	return &c, nil
}

func (db *DB) scanChatRow(row *sql.Row) (*Chat, error) {
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateMessage persists a message, marks it read by its author, and
// updates the owning chat's denormalized last-message summary, all in
// one transaction. The caller assigns ID and timestamps.
func (db *DB) CreateMessage(m *Message, preview string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, chat_id, user_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.UserID, m.Content, m.CreatedAt, m.UpdatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		m.ID, m.UserID); err != nil {
		return fmt.Errorf("insert read mark: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE chats SET last_message = ?, last_message_at = ?, updated_at = ?
		WHERE id = ?`,
		preview, m.CreatedAt, time.Now().UnixMilli(), m.ChatID); err != nil {
		return fmt.Errorf("update chat summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	m.ReadBy = []string{m.UserID}
	return nil
}

// GetMessage returns a single message by ID with its readBy set, or nil
// if absent.
func (db *DB) GetMessage(id string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(messageSelect+` WHERE m.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns up to limit messages for a chat created strictly
// before the given cursor (unix ms), in ascending chronological order.
// A zero cursor applies no upper bound; timestamps are caller-assigned,
// so the query clock must not cap them.
func (db *DB) ListMessages(chatID string, before int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := messageSelect + ` WHERE m.chat_id = ?`
	args := []any{chatID}
	if before > 0 {
		query += ` AND m.created_at < ?`
		args = append(args, before)
	}
	query += `
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query walks backwards from the cursor; callers want ascending.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead adds a user to a message's readBy set. Idempotent.
func (db *DB) MarkRead(messageID, userID string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO message_reads (message_id, user_id) VALUES (?, ?)`,
		messageID, userID)
	return err
}

// MessageCount returns the number of message records.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

const messageSelect = `
	SELECT m.id, m.chat_id, m.user_id, m.content, m.created_at, m.updated_at,
		(SELECT GROUP_CONCAT(user_id) FROM message_reads r WHERE r.message_id = m.id)
	FROM messages m`

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var readBy sql.NullString
	if err := row.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Content, &m.CreatedAt, &m.UpdatedAt, &readBy); err != nil {
		return nil, err
	}
	if readBy.Valid && readBy.String != "" {
		m.ReadBy = strings.Split(readBy.String, ",")
	}
	return &m, nil
}

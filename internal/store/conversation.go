package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// UpsertConversation inserts or updates a conversation record, merging
// field by field: sparse incoming values never blank stored ones, and the
// derived last-message fields only move forward. The unread counter is
// locally owned (only IncrementUnread mutates it) so a conflict leaves it
// untouched, and a conversation already confirmed active is never demoted
// back to pending by a local placeholder.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return err
	}
	// A nil slice marshals to "null"; the schema and the preservation
	// guard below both expect an empty JSON array.
	if string(participants) == "null" {
		participants = []byte("[]")
	}
	if c.Status == "" {
		c.Status = ConversationActive
	}
	_, err = db.Exec(`
		INSERT INTO conversations (id, title, participants, unread_count, last_message_at, last_message_preview, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE conversations.title END,
			participants = CASE WHEN excluded.participants != '[]' THEN excluded.participants ELSE conversations.participants END,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			status = CASE WHEN excluded.status = 'active' THEN excluded.status ELSE conversations.status END,
			updated_at = excluded.updated_at`,
		c.ID, c.Title, string(participants), c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, c.Status, now)
	return err
}

// BumpConversation advances a conversation's derived last-message fields,
// creating the row on first reference. Older timestamps leave it untouched.
func (db *DB) BumpConversation(id string, lastMessageAt int64, preview string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, last_message_at, last_message_preview, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= conversations.last_message_at THEN excluded.last_message_preview ELSE conversations.last_message_preview END,
			updated_at = excluded.updated_at`,
		id, lastMessageAt, preview, now)
	return err
}

// IncrementUnread adds one to a conversation's unread counter.
func (db *DB) IncrementUnread(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE conversations SET unread_count = unread_count + 1, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// GetConversation returns a single conversation by id, or nil if absent.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT id, title, participants, unread_count, last_message_at, last_message_preview, status
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListConversations returns conversations sorted by last message timestamp
// descending.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, title, participants, unread_count, last_message_at, last_message_preview, status
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convos []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convos = append(convos, *c)
	}
	return convos, rows.Err()
}

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var participants string
	err := row.Scan(&c.ID, &c.Title, &participants, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.Status)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		c.Participants = nil
	}
	return &c, nil
}

package store

import (
	"database/sql"
	"time"
)

const messageColumns = `id, conversation_id, COALESCE(local_id, ''), COALESCE(server_id, ''), sender_id, sender_name, content, timestamp, status`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.LocalID, &m.ServerID, &m.SenderID, &m.SenderName, &m.Content, &m.Timestamp, &m.Status)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage inserts a new message row. Empty identifiers are stored as
// NULL so the partial unique indexes only apply to present values.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (conversation_id, local_id, server_id, sender_id, sender_name, content, timestamp, status, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.LocalID, m.ServerID, m.SenderID, m.SenderName, m.Content, m.Timestamp, m.Status, now, now)
	if err != nil {
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// UpdateMessage rewrites a message row by primary key.
func (db *DB) UpdateMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE messages
		SET conversation_id = ?, local_id = NULLIF(?, ''), server_id = NULLIF(?, ''),
			sender_id = ?, sender_name = ?, content = ?, timestamp = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		m.ConversationID, m.LocalID, m.ServerID, m.SenderID, m.SenderName, m.Content, m.Timestamp, m.Status, now, m.ID)
	return err
}

// GetMessageByServerID returns the message with the given server identifier,
// or nil if absent.
func (db *DB) GetMessageByServerID(serverID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE server_id = ?`, serverID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// GetMessageByLocalID returns the message with the given local identifier,
// or nil if absent.
func (db *DB) GetMessageByLocalID(localID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE local_id = ?`, localID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListMessages returns all messages for a conversation ascending by timestamp.
func (db *DB) ListMessages(conversationID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// MessagesByStatus returns messages with the given status, oldest first.
func (db *DB) MessagesByStatus(status string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = ?
		ORDER BY timestamp ASC, id ASC`, status)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// SendingBefore returns messages stuck in sending whose last update is older
// than the cutoff. Used to requeue sends that never got an ack.
func (db *DB) SendingBefore(cutoff int64) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = ? AND updated_at < ?
		ORDER BY timestamp ASC, id ASC`, StatusSending, cutoff)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// CountMessagesByStatus returns per-status message counts.
func (db *DB) CountMessagesByStatus() (map[string]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

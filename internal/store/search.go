package store

// SearchMessages runs a full-text query over message content. When
// conversationID is non-empty, results are limited to that conversation.
func (db *DB) SearchMessages(query, conversationID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT m.id, m.conversation_id, COALESCE(m.local_id, ''), COALESCE(m.server_id, ''),
			m.sender_id, m.sender_name, m.content, m.timestamp, m.status,
			snippet(messages_fts, 0, '[', ']', '...', 12)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?
			AND (? = '' OR m.conversation_id = ?)
		ORDER BY m.timestamp DESC
		LIMIT ?`, query, conversationID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Message.ID, &r.Message.ConversationID, &r.Message.LocalID, &r.Message.ServerID,
			&r.Message.SenderID, &r.Message.SenderName, &r.Message.Content, &r.Message.Timestamp, &r.Message.Status,
			&r.Snippet); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

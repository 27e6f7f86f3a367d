package store

import (
	"database/sql"
	"strconv"
	"time"
)

// GetCursor returns the persisted sync cursor for a stream, or 0 when no
// reconciliation has run yet.
func (db *DB) GetCursor(key string) (int64, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(value, 10, 64)
}

// SetCursor persists a sync cursor. Callers only advance cursors after the
// corresponding batch is durably stored.
func (db *DB) SetCursor(key string, value int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatInt(value, 10), now)
	return err
}

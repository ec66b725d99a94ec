package db

import (
	"database/sql"
	"time"
)

// SaveSnapshot stores the raw payload of the last successful fetch for a query
func (db *DB) SaveSnapshot(queryKey string, payload []byte, fetchedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO task_cache (query_key, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(query_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at
	`, queryKey, payload, fetchedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// LoadSnapshot returns the stored payload for a query, ok=false if nothing was cached
func (db *DB) LoadSnapshot(queryKey string) ([]byte, time.Time, bool, error) {
	var payload []byte
	var fetchedAt string

	err := db.QueryRow(`
		SELECT payload, fetched_at FROM task_cache WHERE query_key = ?
	`, queryKey).Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}

	at, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		at = time.Time{}
	}
	return payload, at, true, nil
}

// DeleteSnapshot drops the cached payload for a query
func (db *DB) DeleteSnapshot(queryKey string) error {
	_, err := db.Exec(`DELETE FROM task_cache WHERE query_key = ?`, queryKey)
	return err
}

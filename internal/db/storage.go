package db

import (
	"database/sql"
	"strings"
	"time"
)

// GetItems returns the stored values for keys together with the storage revision
// they were read at. Missing keys are absent from the map.
func (db *DB) GetItems(keys ...string) (map[string]string, int64, error) {
	items := make(map[string]string, len(keys))
	var revision int64

	err := db.Transaction(func(tx *sql.Tx) error {
		if err := tx.QueryRow(`SELECT revision FROM storage_revision WHERE id = 1`).Scan(&revision); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}

		args := make([]interface{}, len(keys))
		for i, k := range keys {
			args[i] = k
		}
		rows, err := tx.Query(`
			SELECT key, value FROM client_storage
			WHERE key IN (?`+strings.Repeat(", ?", len(keys)-1)+`)
		`, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			items[k] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return items, revision, nil
}

// GetItem returns a single stored value
func (db *DB) GetItem(key string) (string, bool, error) {
	items, _, err := db.GetItems(key)
	if err != nil {
		return "", false, err
	}
	v, ok := items[key]
	return v, ok, nil
}

// SetItems writes every item and bumps the revision in one transaction,
// so readers see either all of the new values or none of them.
func (db *DB) SetItems(items map[string]string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var revision int64

	err := db.Transaction(func(tx *sql.Tx) error {
		for k, v := range items {
			_, err := tx.Exec(`
				INSERT INTO client_storage (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, k, v, now)
			if err != nil {
				return err
			}
		}
		return bumpRevision(tx, &revision)
	})
	return revision, err
}

// RemoveItems deletes keys and bumps the revision in one transaction
func (db *DB) RemoveItems(keys ...string) (int64, error) {
	var revision int64

	err := db.Transaction(func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.Exec(`DELETE FROM client_storage WHERE key = ?`, k); err != nil {
				return err
			}
		}
		return bumpRevision(tx, &revision)
	})
	return revision, err
}

// Revision returns the storage revision. It changes on every write from any process.
func (db *DB) Revision() (int64, error) {
	var revision int64
	err := db.QueryRow(`SELECT revision FROM storage_revision WHERE id = 1`).Scan(&revision)
	return revision, err
}

func bumpRevision(tx *sql.Tx, revision *int64) error {
	if _, err := tx.Exec(`UPDATE storage_revision SET revision = revision + 1 WHERE id = 1`); err != nil {
		return err
	}
	return tx.QueryRow(`SELECT revision FROM storage_revision WHERE id = 1`).Scan(revision)
}

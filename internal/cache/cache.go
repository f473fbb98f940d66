// Package cache is the per-device durable store: one row per collection,
// holding the last-known snapshot of that collection as a JSON array. In
// cache-only mode it is the authoritative store; in remote mode the
// managers write snapshots through after every successful remote read.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"opsline/internal/db"
)

const cacheDBName = "cache.db"

// keyPrefix namespaces collection keys so unrelated rows can share the
// table without collisions.
const keyPrefix = "opsline:"

// Key returns the stable cache key for a collection table name.
func Key(table string) string { return keyPrefix + table }

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// Open opens (and if needed initializes) the cache database under the
// workspace.
func Open(workspace string) (*Store, error) {
	conn, err := db.Open(db.Config{Workspace: workspace, Name: cacheDBName})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS collections(
		key TEXT PRIMARY KEY,
		payload_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &Store{DB: conn, Now: time.Now}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// ReadCollection returns the stored JSON array for key. ok is false when
// the collection has never been written.
func (s *Store) ReadCollection(key string) (json.RawMessage, bool, error) {
	var payload string
	err := s.DB.QueryRow(`SELECT payload_json FROM collections WHERE key=?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(payload), true, nil
}

// WriteCollection replaces the snapshot for key with the given records,
// which must marshal to a JSON array.
func (s *Store) WriteCollection(key string, records any) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal collection %s: %w", key, err)
	}
	now := s.now().UTC().Format(time.RFC3339)
	_, err = s.DB.Exec(`INSERT INTO collections(key,payload_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET payload_json=excluded.payload_json, updated_at=excluded.updated_at`, key, string(payload), now)
	return err
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

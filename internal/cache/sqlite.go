// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Store backed by a single-table SQLite database. Unlike File,
// every Put is written through immediately, so a crashed run keeps its
// resolved entries. Values are stored JSON-encoded.
type SQLite[V any] struct {
	db *sql.DB
}

// NewSQLite opens or creates the cache database at path.
func NewSQLite[V any](path string) (*SQLite[V], error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &SQLite[V]{db: db}, nil
}

func (s *SQLite[V]) Get(key string) (V, bool) {
	var zero V
	var raw string
	err := s.db.QueryRow(`SELECT value FROM entries WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return zero, false
	}
	var v V
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return zero, false
	}
	return v, true
}

func (s *SQLite[V]) Put(key string, value V) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.db.Exec(`INSERT INTO entries (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, string(raw))
}

func (s *SQLite[V]) Len() int {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM entries`).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Flush is a no-op: writes go through on Put.
func (s *SQLite[V]) Flush() error { return nil }

func (s *SQLite[V]) Close() error { return s.db.Close() }

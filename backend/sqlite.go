package backend

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a persistent store backed by a single sqlite database file.
// Values are stored as JSON text so null, string, and number round-trip the
// same way they do on the wire. The AUTOINCREMENT id preserves insertion
// order for KeyAt; an overwrite keeps the row's original id.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   TEXT NOT NULL UNIQUE,
	value TEXT NOT NULL
);`

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or nil if absent.
func (s *SQLite) Get(key string) (any, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM items WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("corrupt value for key %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, keeping the row's insertion position on
// overwrite.
func (s *SQLite) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO items (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	return err
}

// Remove deletes key. Removing an absent key is not an error.
func (s *SQLite) Remove(key string) error {
	_, err := s.db.Exec(`DELETE FROM items WHERE key = ?`, key)
	return err
}

// Clear removes all entries.
func (s *SQLite) Clear() error {
	_, err := s.db.Exec(`DELETE FROM items`)
	return err
}

// Count returns the number of entries.
func (s *SQLite) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}

// KeyAt returns the key at ordinal index in insertion order, reporting
// ok=false when index is out of range.
func (s *SQLite) KeyAt(index int) (string, bool, error) {
	if index < 0 {
		return "", false, nil
	}
	var key string
	err := s.db.QueryRow(`SELECT key FROM items ORDER BY id LIMIT 1 OFFSET ?`, index).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return key, true, nil
}

// Package localstore is a small persistent key/value store, the local
// counterpart of browser local storage.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// APIKeyName is the fixed item name holding the Gemini credential.
const APIKeyName = "vaigai_gemini_key"

// Store persists string items in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &Store{db: db}, nil
}

// GetItem returns the value stored under key. ok is false when the key is absent.
func (s *Store) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get item %q: %w", key, err)
	}
	return value, true, nil
}

// SetItem creates or overwrites key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_storage (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set item %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key if present.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, key); err != nil {
		return fmt.Errorf("remove item %q: %w", key, err)
	}
	return nil
}

// SaveAPIKey stores the trimmed credential. Blank input is ignored and
// reported as saved == false, leaving any previous key in place.
func (s *Store) SaveAPIKey(ctx context.Context, key string) (saved bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	if err := s.SetItem(ctx, APIKeyName, key); err != nil {
		return false, err
	}
	return true, nil
}

// LoadAPIKey returns the saved credential, or "" when none was saved.
func (s *Store) LoadAPIKey(ctx context.Context) (string, error) {
	key, _, err := s.GetItem(ctx, APIKeyName)
	return key, err
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

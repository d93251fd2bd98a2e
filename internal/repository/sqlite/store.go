package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Store keeps named JSON collections in the collections table. All writes are
// serialized by mu so read-modify-write cycles never interleave.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a Store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the raw payload of a collection, or nil when it does not exist.
func (s *Store) Get(name string) (json.RawMessage, error) {
	return s.get(s.db, name)
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) get(q queryer, name string) (json.RawMessage, error) {
	var payload string
	err := q.QueryRow(`SELECT payload FROM collections WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %s: %w", name, err)
	}
	return json.RawMessage(payload), nil
}

// Set atomically replaces a collection.
func (s *Store) Set(name string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(s.db, name, payload)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) put(e execer, name string, payload json.RawMessage) error {
	_, err := e.Exec(`INSERT INTO collections (name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	return nil
}

// Update runs fn on the current payload and stores its result in one transaction.
// Returning a nil payload from fn leaves the collection untouched.
func (s *Store) Update(name string, fn func(current json.RawMessage) (json.RawMessage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update of %s: %w", name, err)
	}
	defer tx.Rollback()

	current, err := s.get(tx, name)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if err := s.put(tx, name, next); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a collection.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	return nil
}

// Names lists stored collections.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Package recent remembers which sessions this client created so they can
// be reopened from the command line. Chat turns are never stored.
package recent

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aminssutt/AurisTraining/internal/session"
)

// Entry is one remembered session.
type Entry struct {
	ID          string
	VehicleName string
	CreatedAt   time.Time
	LastStatus  session.Status
}

// Store is a SQLite-backed list of sessions.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		vehicle_name TEXT NOT NULL,
		created_at DATETIME,
		last_status TEXT
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records a session, replacing any previous entry with the same id.
func (s *Store) Save(sess *session.Session) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO sessions (id, vehicle_name, created_at, last_status) VALUES (?, ?, ?, ?)",
		sess.ID, sess.VehicleName, time.Now().UTC(), string(sess.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// UpdateStatus stores the last status seen for a session. Unknown ids are
// ignored.
func (s *Store) UpdateStatus(id string, status session.Status) error {
	if _, err := s.db.Exec("UPDATE sessions SET last_status = ? WHERE id = ?", string(status), id); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		"SELECT id, vehicle_name, created_at, last_status FROM sessions ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.VehicleName, &e.CreatedAt, &status); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		e.LastStatus = session.Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete forgets a session.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

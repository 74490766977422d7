// Package session provides SQLite-backed persistence for conversation state,
// so suspended clarification exchanges survive process restarts.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"triage/internal/router"
)

// Store persists conversation states in an SQLite database.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultDBPath returns the XDG data path for the session database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "triage", "sessions.db")
}

// Open opens the session database at path, creating parent directories and
// the schema as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			route      TEXT NOT NULL DEFAULT '',
			state      TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	_, err = s.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)
	`)
	if err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	return nil
}

// Save upserts a conversation state. The full state is stored as JSON; status
// and route are duplicated into columns for querying.
func (s *Store) Save(state *router.ConversationState) error {
	if state == nil {
		return fmt.Errorf("nil state")
	}

	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	_, err = s.conn.Exec(`
		INSERT INTO sessions (id, status, route, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			route = excluded.route,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, state.SessionID, string(state.Status), string(state.Route), string(blob), now, now)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Load returns the conversation state for a session ID, or (nil, nil) when
// the session is unknown.
func (s *Store) Load(sessionID string) (*router.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob string
	err := s.conn.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	state := &router.ConversationState{}
	if err := json.Unmarshal([]byte(blob), state); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return state, nil
}

// SessionSummary is a row from List, without the full state blob.
type SessionSummary struct {
	ID        string
	Status    router.Status
	Route     router.Route
	UpdatedAt time.Time
}

// List returns the most recently updated sessions, newest first.
func (s *Store) List(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(`
		SELECT id, status, route, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var status, route string
		if err := rows.Scan(&sum.ID, &status, &route, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sum.Status = router.Status(status)
		sum.Route = router.Route(route)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

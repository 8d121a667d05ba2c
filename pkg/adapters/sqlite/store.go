// Package sqlite stores conversation state in SQLite and hydrates the
// read-only goal, habit, milestone and progress records of a user.
//
// One database serves both roles: Store implements ports.StateStore
// and ports.Hydrator.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/switchboard/pkg/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	user_id    TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS summaries (
	user_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS goals (
	goal_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	target_date TEXT
);
CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);
CREATE TABLE IF NOT EXISTS milestones (
	milestone_id INTEGER PRIMARY KEY AUTOINCREMENT,
	goal_id      INTEGER NOT NULL REFERENCES goals(goal_id) ON DELETE CASCADE,
	description  TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending'
);
CREATE TABLE IF NOT EXISTS habits (
	habit_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL,
	description     TEXT NOT NULL,
	frequency_type  TEXT NOT NULL,
	frequency_value INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id);
CREATE TABLE IF NOT EXISTS progress_logs (
	log_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    TEXT NOT NULL,
	log_type   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_progress_user ON progress_logs(user_id, created_at);
`

// DefaultProgressLimit caps the progress entries loaded per hydration.
const DefaultProgressLimit = 10

// Store is a SQLite-backed StateStore and Hydrator.
type Store struct {
	db            *sql.DB
	progressLimit int
}

type Option func(*Store)

// WithProgressLimit sets how many recent progress logs Hydrate loads.
func WithProgressLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.progressLimit = n
		}
	}
}

// Open opens (or creates) the database at path and applies the schema.
// The special path ":memory:" keeps everything in RAM.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	s := &Store{db: db, progressLimit: DefaultProgressLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the state document of userID.
func (s *Store) Save(ctx context.Context, userID string, state *domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		userID, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Load reads the state document of userID.
func (s *Store) Load(ctx context.Context, userID string) (*domain.State, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversations WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state domain.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the state document of userID. Domain records are kept.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// List returns the users with a stored conversation.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM conversations ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

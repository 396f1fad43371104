// Package memory provides SQLite-based episodic memory for agents. One
// episode is persisted per completed run, whatever its status, and recalled
// to seed later planning prompts.
package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelier-ai/atelier/pkg/models"
)

// EpisodeSink receives completed episodes. Agents depend on this interface so
// persistence can be disabled or substituted in tests.
type EpisodeSink interface {
	SaveEpisode(ep models.Episode) error
}

// Store wraps an SQLite database holding past episodes.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultPath returns the default episode database location.
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "atelier", "episodes.db")
}

// Open opens the episode database at path, creating parent directories as
// needed. WAL mode is enabled for concurrent reads.
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
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{conn: conn, path: path}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Episodes},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Episodes = `
CREATE TABLE IF NOT EXISTS episodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	input TEXT NOT NULL,
	plan_json TEXT NOT NULL,
	tool_calls_json TEXT NOT NULL,
	observations_json TEXT NOT NULL,
	final_answer TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at);
`

// SaveEpisode appends one episode. The log is append-only.
func (s *Store) SaveEpisode(ep models.Episode) error {
	planJSON, err := json.Marshal(ep.Plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	callsJSON, err := json.Marshal(ep.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}
	obsJSON, err := json.Marshal(ep.Observations)
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(`
		INSERT INTO episodes (input, plan_json, tool_calls_json, observations_json, final_answer, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ep.Input, string(planJSON), string(callsJSON), string(obsJSON), ep.FinalAnswer, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// Recent returns the most recent episodes, newest first.
func (s *Store) Recent(limit int) ([]models.Episode, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT input, plan_json, tool_calls_json, observations_json, final_answer
		FROM episodes ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// All returns every stored episode, oldest first.
func (s *Store) All() ([]models.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT input, plan_json, tool_calls_json, observations_json, final_answer
		FROM episodes ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodes(rows)
}

// Count returns the number of stored episodes.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM episodes").Scan(&n); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

func scanEpisodes(rows *sql.Rows) ([]models.Episode, error) {
	var out []models.Episode
	for rows.Next() {
		var ep models.Episode
		var planJSON, callsJSON, obsJSON string
		if err := rows.Scan(&ep.Input, &planJSON, &callsJSON, &obsJSON, &ep.FinalAnswer); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(planJSON), &ep.Plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		if err := json.Unmarshal([]byte(callsJSON), &ep.ToolCalls); err != nil {
			return nil, fmt.Errorf("decode tool calls: %w", err)
		}
		if err := json.Unmarshal([]byte(obsJSON), &ep.Observations); err != nil {
			return nil, fmt.Errorf("decode observations: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

var _ EpisodeSink = (*Store)(nil)

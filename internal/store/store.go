// Package store owns all persistence: persona profiles, the per-chat message
// log, the long-term memory store, and the worldbook lore store, all in one
// SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/xenolinkco/xenochat/internal/chunk"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db       *sql.DB
	mu       sync.Mutex
	embedder Embedder
	splitter *chunk.Splitter
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS xenoprofiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			surname TEXT NOT NULL DEFAULT '',
			earthage INTEGER NOT NULL DEFAULT 0,
			gender TEXT NOT NULL DEFAULT '',
			interests TEXT NOT NULL DEFAULT '',
			likes TEXT NOT NULL DEFAULT '',
			dislikes TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			biography TEXT NOT NULL DEFAULT '',
			species TEXT NOT NULL DEFAULT '',
			subspecies TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			lookingfor TEXT NOT NULL DEFAULT '',
			orientation TEXT NOT NULL DEFAULT '',
			redflags TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS characters (
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			surname TEXT NOT NULL DEFAULT '',
			earthage INTEGER NOT NULL DEFAULT 0,
			gender TEXT NOT NULL DEFAULT '',
			interests TEXT NOT NULL DEFAULT '',
			likes TEXT NOT NULL DEFAULT '',
			dislikes TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			biography TEXT NOT NULL DEFAULT '',
			species TEXT NOT NULL DEFAULT '',
			subspecies TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			lookingfor TEXT NOT NULL DEFAULT '',
			orientation TEXT NOT NULL DEFAULT '',
			redflags TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (user_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'model')),
			text TEXT NOT NULL,
			ts INTEGER NOT NULL,
			sender_id TEXT NOT NULL DEFAULT '',
			receiver_id TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(user_id, chat_id, ts)`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			character_id TEXT NOT NULL,
			xenoprofile_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories(character_id, xenoprofile_id)`,
		`CREATE TABLE IF NOT EXISTS worldbook (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			scope TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			species TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			subcategory TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			embedding BLOB,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_worldbook_scope ON worldbook(scope, category)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Package storage persists the chat log and the entity skeleton needed
// to rehydrate it, using SQLite. The server writes through on every
// mutation and replays the whole database into the in-memory model on
// boot.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// DB wraps the SQLite handle holding the durable chat log
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database under dataDir
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "atrium.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS communities (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS members (
			community INTEGER NOT NULL,
			user INTEGER NOT NULL,
			permissions INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (community, user)
		);
		CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY,
			community INTEGER NOT NULL,
			name TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			community INTEGER NOT NULL,
			room INTEGER NOT NULL,
			id INTEGER NOT NULL,
			author INTEGER NOT NULL,
			content TEXT NOT NULL,
			time_sent INTEGER NOT NULL,
			edited INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (room, id)
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id);
		CREATE TABLE IF NOT EXISTS invites (
			code TEXT PRIMARY KEY,
			community INTEGER NOT NULL,
			expiration INTEGER
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db: db, path: dbPath}, nil
}

// Close closes the underlying handle
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

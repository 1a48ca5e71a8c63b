// Package store is the SQLite-backed metadata store for notes, folders,
// categories, tags, and resumable processing blocks.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id      INTEGER,
	title          TEXT NOT NULL DEFAULT '',
	file_path      TEXT NOT NULL UNIQUE,
	folder_id      INTEGER,
	category_id    INTEGER,
	subcategory_id INTEGER,
	status         TEXT NOT NULL DEFAULT 'draft',
	summary        TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	project        TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	word_count     INTEGER NOT NULL DEFAULT 0,
	content_hash   TEXT NOT NULL DEFAULT '',
	source_hash    TEXT NOT NULL DEFAULT '',
	lang           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(status);
CREATE INDEX IF NOT EXISTS idx_notes_content_hash ON notes(content_hash);
CREATE INDEX IF NOT EXISTS idx_notes_source_hash ON notes(source_hash);

CREATE TABLE IF NOT EXISTS folders (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	path           TEXT NOT NULL UNIQUE,
	folder_type    TEXT NOT NULL,
	parent_id      INTEGER,
	category_id    INTEGER,
	subcategory_id INTEGER
);

CREATE TABLE IF NOT EXISTS categories (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	parent_id   INTEGER,
	description TEXT NOT NULL DEFAULT '',
	prompt_hint TEXT NOT NULL DEFAULT '',
	UNIQUE(name, parent_id)
);

CREATE TABLE IF NOT EXISTS tags (
	note_id INTEGER NOT NULL,
	tag     TEXT NOT NULL,
	UNIQUE(note_id, tag)
);

CREATE TABLE IF NOT EXISTS temp_blocks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id      INTEGER NOT NULL,
	block_index  INTEGER NOT NULL,
	content      TEXT NOT NULL DEFAULT '',
	prompt       TEXT NOT NULL,
	model        TEXT NOT NULL,
	split_method TEXT NOT NULL,
	word_limit   INTEGER NOT NULL,
	source       TEXT NOT NULL,
	response     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'waiting',
	UNIQUE(note_id, block_index, prompt, model, split_method, word_limit, source)
);

CREATE INDEX IF NOT EXISTS idx_temp_blocks_note ON temp_blocks(note_id);
`

// DB wraps a sql.DB with metadata-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

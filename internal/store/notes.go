package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kerbin-io/notarius/internal/apperr"
)

// Note is a row of the notes table.
type Note struct {
	ID            int64
	ParentID      *int64
	Title         string
	FilePath      string
	FolderID      *int64
	CategoryID    *int64
	SubcategoryID *int64
	Status        Status
	Summary       string
	Source        string
	Author        string
	Project       string
	CreatedAt     time.Time
	ModifiedAt    time.Time
	WordCount     int
	ContentHash   string
	SourceHash    string
	Lang          string
}

const noteColumns = `id, parent_id, title, file_path, folder_id, category_id,
	subcategory_id, status, summary, source, author, project, created_at,
	modified_at, word_count, content_hash, source_hash, lang`

func scanNote(row interface{ Scan(...any) error }) (*Note, error) {
	var n Note
	var status string
	err := row.Scan(&n.ID, &n.ParentID, &n.Title, &n.FilePath, &n.FolderID,
		&n.CategoryID, &n.SubcategoryID, &status, &n.Summary, &n.Source,
		&n.Author, &n.Project, &n.CreatedAt, &n.ModifiedAt, &n.WordCount,
		&n.ContentHash, &n.SourceHash, &n.Lang)
	if err != nil {
		return nil, err
	}
	n.Status, err = ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// InsertNote inserts n and returns the new id.
func (db *DB) InsertNote(n *Note) (int64, error) {
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.ModifiedAt.IsZero() {
		n.ModifiedAt = now
	}
	res, err := db.conn.Exec(`
		INSERT INTO notes (parent_id, title, file_path, folder_id, category_id,
			subcategory_id, status, summary, source, author, project,
			created_at, modified_at, word_count, content_hash, source_hash, lang)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ParentID, n.Title, n.FilePath, n.FolderID, n.CategoryID,
		n.SubcategoryID, string(n.Status), n.Summary, n.Source, n.Author,
		n.Project, n.CreatedAt, n.ModifiedAt, n.WordCount, n.ContentHash,
		n.SourceHash, n.Lang)
	if err != nil {
		return 0, fmt.Errorf("store: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert note id: %w", err)
	}
	n.ID = id
	return id, nil
}

// UpdateNote rewrites every mutable column of n and bumps modified_at.
func (db *DB) UpdateNote(n *Note) error {
	n.ModifiedAt = time.Now().UTC()
	_, err := db.conn.Exec(`
		UPDATE notes SET parent_id = ?, title = ?, file_path = ?, folder_id = ?,
			category_id = ?, subcategory_id = ?, status = ?, summary = ?,
			source = ?, author = ?, project = ?, modified_at = ?,
			word_count = ?, content_hash = ?, source_hash = ?, lang = ?
		WHERE id = ?
	`, n.ParentID, n.Title, n.FilePath, n.FolderID, n.CategoryID,
		n.SubcategoryID, string(n.Status), n.Summary, n.Source, n.Author,
		n.Project, n.ModifiedAt, n.WordCount, n.ContentHash, n.SourceHash,
		n.Lang, n.ID)
	if err != nil {
		return fmt.Errorf("store: update note %d: %w", n.ID, err)
	}
	return nil
}

// NoteByPath returns the note at file_path, or apperr.ErrNotFound.
func (db *DB) NoteByPath(filePath string) (*Note, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE file_path = ?`, filePath)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %s: %w", filePath, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: note by path: %w", err)
	}
	return n, nil
}

// NoteByID returns the note with id, or apperr.ErrNotFound.
func (db *DB) NoteByID(id int64) (*Note, error) {
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: note by id: %w", err)
	}
	return n, nil
}

// AllNotes returns every note record.
func (db *DB) AllNotes() ([]*Note, error) {
	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: all notes: %w", err)
	}
	defer rows.Close()
	var out []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNote removes the note row and its tags and blocks. The partner of a
// paired record is not touched here; callers clear the link explicitly.
func (db *DB) DeleteNote(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM tags WHERE note_id = ?`, id)
	_, _ = tx.Exec(`DELETE FROM temp_blocks WHERE note_id = ?`, id)
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete note %d: %w", id, err)
	}
	return tx.Commit()
}

// SetPair stores reciprocal parent pointers between an archive and its
// synthesis inside one transaction.
func (db *DB) SetPair(archiveID, synthesisID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`UPDATE notes SET parent_id = ? WHERE id = ?`, synthesisID, archiveID); err != nil {
		return fmt.Errorf("store: pair archive: %w", err)
	}
	if _, err := tx.Exec(`UPDATE notes SET parent_id = ? WHERE id = ?`, archiveID, synthesisID); err != nil {
		return fmt.Errorf("store: pair synthesis: %w", err)
	}
	return tx.Commit()
}

// ClearParent nulls the parent pointer of id.
func (db *DB) ClearParent(id int64) error {
	if _, err := db.conn.Exec(`UPDATE notes SET parent_id = NULL WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: clear parent %d: %w", id, err)
	}
	return nil
}

// TitleRef is a (id, title) pair used by duplicate detection.
type TitleRef struct {
	ID    int64
	Title string
}

// ArchiveTitles returns the titles of all archive-status notes.
func (db *DB) ArchiveTitles() ([]TitleRef, error) {
	rows, err := db.conn.Query(`SELECT id, title FROM notes WHERE status = ?`, string(StatusArchive))
	if err != nil {
		return nil, fmt.Errorf("store: archive titles: %w", err)
	}
	defer rows.Close()
	var out []TitleRef
	for rows.Next() {
		var ref TitleRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// NoteByContentHash returns the first archive note with the given content
// hash, or nil when there is none.
func (db *DB) NoteByContentHash(hash string) (*Note, error) {
	return db.noteByHashColumn("content_hash", hash)
}

// NoteBySourceHash returns the first archive note with the given source hash,
// or nil when there is none.
func (db *DB) NoteBySourceHash(hash string) (*Note, error) {
	return db.noteByHashColumn("source_hash", hash)
}

func (db *DB) noteByHashColumn(column, hash string) (*Note, error) {
	if hash == "" {
		return nil, nil
	}
	row := db.conn.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE `+column+` = ? AND status = ? LIMIT 1`,
		hash, string(StatusArchive))
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: note by %s: %w", column, err)
	}
	return n, nil
}

// ReplaceTags replaces the tag set of a note.
func (db *DB) ReplaceTags(noteID int64, tags []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("store: clear tags: %w", err)
	}
	for _, tag := range tags {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO tags (note_id, tag) VALUES (?, ?)`, noteID, tag); err != nil {
			return fmt.Errorf("store: insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// Tags returns the tag set of a note.
func (db *DB) Tags(noteID int64) ([]string, error) {
	rows, err := db.conn.Query(`SELECT tag FROM tags WHERE note_id = ? ORDER BY tag`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: tags: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

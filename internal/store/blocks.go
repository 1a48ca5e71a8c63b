package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// BlockKey is the composite identity of one resumable processing unit.
type BlockKey struct {
	NoteID      int64
	BlockIndex  int
	Prompt      string
	Model       string
	SplitMethod string
	WordLimit   int
	Source      string
}

// Block is a row of the temp_blocks table.
type Block struct {
	BlockKey
	Content  string
	Response string
	Status   BlockStatus
}

// EnsureBlock persists a waiting block for key unless a row already exists,
// and returns the current row either way. This is what makes reprocessing
// resumable: a processed row survives restarts and is returned as-is.
func (db *DB) EnsureBlock(key BlockKey, content string) (*Block, error) {
	_, err := db.conn.Exec(`
		INSERT INTO temp_blocks (note_id, block_index, content, prompt, model, split_method, word_limit, source, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id, block_index, prompt, model, split_method, word_limit, source) DO NOTHING
	`, key.NoteID, key.BlockIndex, content, key.Prompt, key.Model, key.SplitMethod, key.WordLimit, key.Source, string(BlockWaiting))
	if err != nil {
		return nil, fmt.Errorf("store: ensure block: %w", err)
	}
	return db.BlockByKey(key)
}

// BlockByKey returns the block for key, or nil when absent.
func (db *DB) BlockByKey(key BlockKey) (*Block, error) {
	row := db.conn.QueryRow(`
		SELECT content, response, status FROM temp_blocks
		WHERE note_id = ? AND block_index = ? AND prompt = ? AND model = ?
			AND split_method = ? AND word_limit = ? AND source = ?
	`, key.NoteID, key.BlockIndex, key.Prompt, key.Model, key.SplitMethod, key.WordLimit, key.Source)

	b := &Block{BlockKey: key}
	var status string
	err := row.Scan(&b.Content, &b.Response, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: block by key: %w", err)
	}
	b.Status = BlockStatus(status)
	return b, nil
}

// SetBlockResult stores the inference response and final status for key.
func (db *DB) SetBlockResult(key BlockKey, response string, status BlockStatus) error {
	_, err := db.conn.Exec(`
		UPDATE temp_blocks SET response = ?, status = ?
		WHERE note_id = ? AND block_index = ? AND prompt = ? AND model = ?
			AND split_method = ? AND word_limit = ? AND source = ?
	`, response, string(status), key.NoteID, key.BlockIndex, key.Prompt, key.Model, key.SplitMethod, key.WordLimit, key.Source)
	if err != nil {
		return fmt.Errorf("store: set block result: %w", err)
	}
	return nil
}

// BlocksForRun returns every block of one processing run (same note, prompt,
// model, split method, word limit and source) ordered by block index.
func (db *DB) BlocksForRun(key BlockKey) ([]*Block, error) {
	rows, err := db.conn.Query(`
		SELECT block_index, content, response, status FROM temp_blocks
		WHERE note_id = ? AND prompt = ? AND model = ? AND split_method = ? AND word_limit = ? AND source = ?
		ORDER BY block_index
	`, key.NoteID, key.Prompt, key.Model, key.SplitMethod, key.WordLimit, key.Source)
	if err != nil {
		return nil, fmt.Errorf("store: blocks for run: %w", err)
	}
	defer rows.Close()

	var out []*Block
	for rows.Next() {
		b := &Block{BlockKey: key}
		var status string
		if err := rows.Scan(&b.BlockIndex, &b.Content, &b.Response, &status); err != nil {
			return nil, err
		}
		b.Status = BlockStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBlocksForRun removes the persisted blocks of one processing run, used
// when resumption is disabled and the caller wants a clean recompute.
func (db *DB) DeleteBlocksForRun(key BlockKey) error {
	_, err := db.conn.Exec(`
		DELETE FROM temp_blocks
		WHERE note_id = ? AND prompt = ? AND model = ? AND split_method = ? AND word_limit = ? AND source = ?
	`, key.NoteID, key.Prompt, key.Model, key.SplitMethod, key.WordLimit, key.Source)
	if err != nil {
		return fmt.Errorf("store: delete blocks: %w", err)
	}
	return nil
}

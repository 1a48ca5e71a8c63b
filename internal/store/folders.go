package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/kerbin-io/notarius/internal/apperr"
)

// Folder is a row of the folders table.
type Folder struct {
	ID            int64
	Name          string
	Path          string
	Type          FolderType
	ParentID      *int64
	CategoryID    *int64
	SubcategoryID *int64
}

// Category is a row of the categories table. ParentID is nil for top-level
// categories and set for subcategories.
type Category struct {
	ID          int64
	Name        string
	ParentID    *int64
	Description string
	PromptHint  string
}

// EnsureFolder returns the folder at path, creating it when missing.
func (db *DB) EnsureFolder(f *Folder) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`SELECT id FROM folders WHERE path = ?`, f.Path).Scan(&id)
	if err == nil {
		f.ID = id
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: folder lookup: %w", err)
	}
	res, err := db.conn.Exec(`
		INSERT INTO folders (name, path, folder_type, parent_id, category_id, subcategory_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.Name, f.Path, string(f.Type), f.ParentID, f.CategoryID, f.SubcategoryID)
	if err != nil {
		return 0, fmt.Errorf("store: insert folder: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert folder id: %w", err)
	}
	f.ID = id
	return id, nil
}

// FolderByPath returns the folder at path, or apperr.ErrNotFound.
func (db *DB) FolderByPath(path string) (*Folder, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, path, folder_type, parent_id, category_id, subcategory_id
		FROM folders WHERE path = ?`, path)
	var f Folder
	var ft string
	err := row.Scan(&f.ID, &f.Name, &f.Path, &ft, &f.ParentID, &f.CategoryID, &f.SubcategoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: folder %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: folder by path: %w", err)
	}
	f.Type = FolderType(ft)
	return &f, nil
}

// EnsureCategory returns the category with (name, parentID), creating it when
// missing. parentID nil means a top-level category.
func (db *DB) EnsureCategory(name string, parentID *int64, description, promptHint string) (int64, error) {
	var id int64
	var err error
	if parentID == nil {
		err = db.conn.QueryRow(`SELECT id FROM categories WHERE name = ? AND parent_id IS NULL`, name).Scan(&id)
	} else {
		err = db.conn.QueryRow(`SELECT id FROM categories WHERE name = ? AND parent_id = ?`, name, *parentID).Scan(&id)
	}
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("store: category lookup: %w", err)
	}
	res, err := db.conn.Exec(`
		INSERT INTO categories (name, parent_id, description, prompt_hint)
		VALUES (?, ?, ?, ?)
	`, name, parentID, description, promptHint)
	if err != nil {
		return 0, fmt.Errorf("store: insert category: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert category id: %w", err)
	}
	return id, nil
}

// Categories returns every category row ordered by parent then name, so
// top-level categories come before their subcategories.
func (db *DB) Categories() ([]Category, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, parent_id, description, prompt_hint
		FROM categories ORDER BY parent_id IS NOT NULL, name`)
	if err != nil {
		return nil, fmt.Errorf("store: categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Description, &c.PromptHint); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CategoryByID returns one category row.
func (db *DB) CategoryByID(id int64) (*Category, error) {
	row := db.conn.QueryRow(`SELECT id, name, parent_id, description, prompt_hint FROM categories WHERE id = ?`, id)
	var c Category
	err := row.Scan(&c.ID, &c.Name, &c.ParentID, &c.Description, &c.PromptHint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: category %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: category by id: %w", err)
	}
	return &c, nil
}

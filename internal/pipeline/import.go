package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kerbin-io/notarius/internal/journal"
	"github.com/kerbin-io/notarius/internal/note"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
)

// Outcome says where an import landed.
type Outcome int

const (
	OutcomeArchived Outcome = iota
	OutcomeUncategorized
	OutcomeDuplicate
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeArchived:
		return "archived"
	case OutcomeUncategorized:
		return "uncategorized"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result reports what Import did with a note.
type Result struct {
	Outcome Outcome
	Note    *store.Note
	Path    string // final absolute path of the file
}

// Import runs the full intake for a note file observed in the import zone:
// parse, classify, deduplicate, move into place, generate the header, and
// persist the record.
func (p *Pipeline) Import(ctx context.Context, absPath string) (*Result, error) {
	data, err := p.vault.Read(absPath)
	if err != nil {
		return nil, err
	}
	parsed := note.Parse(absPath, data)

	cls, err := p.classify(ctx, parsed.Title, parsed.Body)
	if err != nil {
		return nil, err
	}
	if cls.Unknown {
		return p.holdUncategorized(absPath, parsed, cls.RawText)
	}

	if dup := p.findDuplicate(parsed); dup != nil {
		return p.quarantineDuplicate(absPath, parsed, dup)
	}

	return p.file(ctx, absPath, parsed, cls.Category, cls.Subcategory)
}

// ImportAt files a note under an operator-chosen category, skipping the model
// classification step. Used when a file is moved by hand out of the holding
// folder or between storage categories.
func (p *Pipeline) ImportAt(ctx context.Context, absPath, category, subcategory string) (*Result, error) {
	data, err := p.vault.Read(absPath)
	if err != nil {
		return nil, err
	}
	parsed := note.Parse(absPath, data)

	if dup := p.findDuplicate(parsed); dup != nil && dup.FilePath != absPath {
		return p.quarantineDuplicate(absPath, parsed, dup)
	}
	return p.file(ctx, absPath, parsed, category, subcategory)
}

// file moves the note into its category directory under a dated name, asks
// the model for tags and a summary, and upserts the archive record.
func (p *Pipeline) file(ctx context.Context, absPath string, parsed *note.Parsed, category, subcategory string) (*Result, error) {
	catID, subID, folderID, dir, err := p.EnsureCategoryFolders(category, subcategory)
	if err != nil {
		return nil, err
	}

	name := vault.DatedName(time.Now(), filepath.Base(absPath))
	finalPath, err := p.vault.MoveToDir(absPath, dir, name)
	if err != nil {
		return nil, err
	}

	header, err := p.GenerateHeader(ctx, parsed.Title, parsed.Body)
	if err != nil {
		// The file is already in place; losing tags is recoverable, losing
		// the record is not.
		p.logger.Warn("pipeline: header generation failed",
			slog.String("path", finalPath),
			slog.String("error", err.Error()))
		header = &Header{Summary: parsed.Summary}
	}

	n := recordFromParsed(parsed, finalPath)
	n.Status = store.StatusArchive
	n.FolderID = &folderID
	n.CategoryID = &catID
	if subID != 0 {
		n.SubcategoryID = &subID
	}
	if header.Summary != "" {
		n.Summary = header.Summary
	}
	if err := p.upsert(absPath, n); err != nil {
		return nil, err
	}

	tags := parsed.Tags
	if len(header.Tags) > 0 {
		tags = header.Tags
	}
	if len(tags) > 0 {
		if err := p.db.ReplaceTags(n.ID, tags); err != nil {
			p.logger.Warn("pipeline: tag write failed", slog.String("error", err.Error()))
		}
	}

	p.logger.Info("pipeline: note archived",
		slog.String("path", finalPath),
		slog.String("category", category),
		slog.String("subcategory", subcategory))
	return &Result{Outcome: OutcomeArchived, Note: n, Path: finalPath}, nil
}

// holdUncategorized parks a note the model could not place.
func (p *Pipeline) holdUncategorized(absPath string, parsed *note.Parsed, rawText string) (*Result, error) {
	originZone := p.vault.ZoneOf(absPath)

	finalPath, err := p.vault.MoveToDir(absPath, p.vault.ZoneDir(vault.ZoneUncategorized), "")
	if err != nil {
		return nil, err
	}

	n := recordFromParsed(parsed, finalPath)
	n.Status = store.StatusUncategorized
	if err := p.upsert(absPath, n); err != nil {
		return nil, err
	}

	if err := p.journal.Uncategorized(journal.UncategorizedEntry{
		Path:         finalPath,
		OriginalType: originZone.String(),
		ModelText:    rawText,
	}); err != nil {
		p.logger.Warn("pipeline: journal write failed", slog.String("error", err.Error()))
	}

	p.logger.Info("pipeline: note held as uncategorized", slog.String("path", finalPath))
	return &Result{Outcome: OutcomeUncategorized, Note: n, Path: finalPath}, nil
}

// quarantineDuplicate parks a note that matches an existing archive.
func (p *Pipeline) quarantineDuplicate(absPath string, parsed *note.Parsed, original *store.Note) (*Result, error) {
	finalPath, err := p.vault.MoveToDir(absPath, p.vault.ZoneDir(vault.ZoneDuplicates), "")
	if err != nil {
		return nil, err
	}

	n := recordFromParsed(parsed, finalPath)
	n.Status = store.StatusDuplicate
	if err := p.upsert(absPath, n); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline: duplicate quarantined",
		slog.String("path", finalPath),
		slog.Int64("original_id", original.ID),
		slog.String("original_path", original.FilePath))
	return &Result{Outcome: OutcomeDuplicate, Note: n, Path: finalPath}, nil
}

// upsert persists n, reusing the record previously stored at oldPath when the
// same file was seen before (re-import after a manual move).
func (p *Pipeline) upsert(oldPath string, n *store.Note) error {
	if existing, err := p.db.NoteByPath(oldPath); err == nil {
		n.ID = existing.ID
		n.ParentID = existing.ParentID
		n.CreatedAt = existing.CreatedAt
		return p.db.UpdateNote(n)
	}
	if existing, err := p.db.NoteByPath(n.FilePath); err == nil {
		n.ID = existing.ID
		n.ParentID = existing.ParentID
		n.CreatedAt = existing.CreatedAt
		return p.db.UpdateNote(n)
	}
	_, err := p.db.InsertNote(n)
	return err
}

func recordFromParsed(parsed *note.Parsed, finalPath string) *store.Note {
	return &store.Note{
		Title:       parsed.Title,
		FilePath:    finalPath,
		Summary:     parsed.Summary,
		Source:      parsed.Source,
		Author:      parsed.Author,
		Project:     parsed.Project,
		Lang:        parsed.Lang,
		WordCount:   parsed.WordCount,
		ContentHash: parsed.ContentHash,
		SourceHash:  parsed.SourceHash,
	}
}

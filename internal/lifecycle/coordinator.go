// Package lifecycle is the top-level state machine: each filesystem event is
// dispatched, by path zone and persisted status, to the import pipeline, the
// synthesis orchestrator, or a plain metadata update. A failing note is
// quarantined and the consumer moves on; one bad file never halts the system.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/kerbin-io/notarius/internal/apperr"
	"github.com/kerbin-io/notarius/internal/journal"
	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/locker"
	"github.com/kerbin-io/notarius/internal/note"
	"github.com/kerbin-io/notarius/internal/pipeline"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/synth"
	"github.com/kerbin-io/notarius/internal/vault"
	"github.com/kerbin-io/notarius/internal/watch"
)

// Counters tracks processing totals for the status surface.
type Counters struct {
	processed   atomic.Int64
	duplicates  atomic.Int64
	quarantined atomic.Int64
	errors      atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed   int64 `json:"processed"`
	Duplicates  int64 `json:"duplicates"`
	Quarantined int64 `json:"quarantined"`
	Errors      int64 `json:"errors"`
}

// Snapshot returns the current totals.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Processed:   c.processed.Load(),
		Duplicates:  c.duplicates.Load(),
		Quarantined: c.quarantined.Load(),
		Errors:      c.errors.Load(),
	}
}

// Coordinator routes events through the note lifecycle.
type Coordinator struct {
	db        *store.DB
	vault     *vault.Vault
	pipeline  *pipeline.Pipeline
	synth     *synth.Orchestrator
	journal   *journal.Journal
	wordDelta int
	logger    *slog.Logger
	counters  Counters
}

// New returns a Coordinator. wordDelta is the word-count change above which a
// stored note's modification triggers regeneration.
func New(db *store.DB, v *vault.Vault, p *pipeline.Pipeline, s *synth.Orchestrator, j *journal.Journal, wordDelta int, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		db:        db,
		vault:     v,
		pipeline:  p,
		synth:     s,
		journal:   j,
		wordDelta: wordDelta,
		logger:    logger,
	}
}

// Counters exposes the processing totals.
func (c *Coordinator) Counters() *Counters { return &c.counters }

// Handle processes one event. A note-level failure quarantines that note and
// returns nil; only infrastructure failures propagate to the consumer.
func (c *Coordinator) Handle(ctx context.Context, ev watch.Event) error {
	if ev.Kind == watch.KindDirectory {
		return nil
	}

	abs, err := c.vault.Resolve(ev.Path)
	if err != nil {
		// Path escape is a security invariant: reject outright, no retry,
		// no quarantine move (there is nothing safe to move).
		c.counters.errors.Add(1)
		c.logger.Warn("lifecycle: rejected path",
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
		return nil
	}

	switch ev.Action {
	case watch.ActionCreated, watch.ActionModified:
		return c.handleUpsert(ctx, abs, ev.Action)
	case watch.ActionMoved:
		return c.handleMove(ctx, ev.SrcPath, abs)
	case watch.ActionDeleted:
		return c.handleDelete(abs)
	default:
		return nil
	}
}

func (c *Coordinator) handleUpsert(ctx context.Context, abs string, action watch.Action) error {
	switch c.vault.ZoneOf(abs) {
	case vault.ZoneImport:
		return c.runImport(ctx, abs, action)
	case vault.ZoneStorage:
		return c.handleStoredChange(ctx, abs, action)
	default:
		// Holding zones are terminal until a human moves the file out.
		return nil
	}
}

func (c *Coordinator) handleMove(ctx context.Context, src, dst string) error {
	srcZone := vault.ZoneOther
	if src != "" {
		if absSrc, err := c.vault.Resolve(src); err == nil {
			src = absSrc
			srcZone = c.vault.ZoneOf(absSrc)
		}
	}

	switch c.vault.ZoneOf(dst) {
	case vault.ZoneImport:
		// Moving into the import zone is a fresh import.
		c.forgetPath(src)
		return c.runImport(ctx, dst, watch.ActionMoved)

	case vault.ZoneStorage:
		if srcZone == vault.ZoneUncategorized {
			return c.runForcedImport(ctx, src, dst)
		}
		return c.relocate(ctx, src, dst)

	default:
		// Moved into a holding zone by hand: track the new location.
		if n := c.noteAt(src); n != nil {
			n.FilePath = dst
			if err := c.db.UpdateNote(n); err != nil {
				return err
			}
		}
		return nil
	}
}

// runImport sends a file through classification and, when archived, builds
// its synthesis pair.
func (c *Coordinator) runImport(ctx context.Context, abs string, action watch.Action) error {
	res, err := c.pipeline.Import(ctx, abs)
	if err != nil {
		return c.quarantine(abs, "import", action, err)
	}
	return c.afterImport(ctx, res, action)
}

// runForcedImport files a note under the category its destination path names,
// skipping the model classification. Used for manual moves out of the
// uncategorized holding folder.
func (c *Coordinator) runForcedImport(ctx context.Context, src, dst string) error {
	category, subcategory, ok := c.vault.CategoryFromPath(dst)
	if !ok {
		c.logger.Warn("lifecycle: cannot derive category from path", slog.String("path", dst))
		return nil
	}
	c.forgetPath(src)
	res, err := c.pipeline.ImportAt(ctx, dst, category, subcategory)
	if err != nil {
		return c.quarantine(dst, "import", watch.ActionMoved, err)
	}
	return c.afterImport(ctx, res, watch.ActionMoved)
}

func (c *Coordinator) afterImport(ctx context.Context, res *pipeline.Result, action watch.Action) error {
	switch res.Outcome {
	case pipeline.OutcomeArchived:
		if _, err := c.synth.Synthesize(ctx, res.Note); err != nil {
			return c.quarantine(res.Path, "synthesis", action, err)
		}
		c.counters.processed.Add(1)
	case pipeline.OutcomeDuplicate:
		c.counters.duplicates.Add(1)
	case pipeline.OutcomeUncategorized:
		c.counters.quarantined.Add(1)
	}
	return nil
}

// handleStoredChange reacts to a create or modify inside the storage zone.
func (c *Coordinator) handleStoredChange(ctx context.Context, abs string, action watch.Action) error {
	n := c.noteAt(abs)
	if n == nil {
		// A file appearing in storage without a record: file it under the
		// category its location names.
		category, subcategory, ok := c.vault.CategoryFromPath(abs)
		if !ok {
			return nil
		}
		res, err := c.pipeline.ImportAt(ctx, abs, category, subcategory)
		if err != nil {
			return c.quarantine(abs, "import", action, err)
		}
		return c.afterImport(ctx, res, action)
	}
	if n.Status == store.StatusSynthesis && action == watch.ActionCreated {
		return nil
	}

	data, err := c.vault.Read(abs)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil // raced with a delete
		}
		return err
	}
	parsed := note.Parse(abs, data)

	delta := parsed.WordCount - n.WordCount
	if delta < 0 {
		delta = -delta
	}

	n.WordCount = parsed.WordCount
	n.ContentHash = parsed.ContentHash
	if err := c.db.UpdateNote(n); err != nil {
		return err
	}
	if delta <= c.wordDelta {
		return nil
	}

	switch n.Status {
	case store.StatusArchive:
		if err := c.regenerateHeader(ctx, n, parsed); err != nil {
			return c.quarantine(abs, "header", action, err)
		}
		if _, err := c.synth.Synthesize(ctx, n); err != nil {
			return c.quarantine(abs, "synthesis", action, err)
		}
		c.counters.processed.Add(1)
	case store.StatusSynthesis:
		if _, err := c.synth.Regenerate(ctx, n); err != nil {
			return c.quarantine(abs, "synthesis", action, err)
		}
		c.counters.processed.Add(1)
	}
	return nil
}

// relocate handles a storage-to-storage move: metadata only, no inference
// unless the category changed.
func (c *Coordinator) relocate(ctx context.Context, src, dst string) error {
	n := c.noteAt(src)
	if n == nil {
		return c.handleStoredChange(ctx, dst, watch.ActionMoved)
	}

	category, subcategory, ok := c.vault.CategoryFromPath(dst)
	if !ok {
		n.FilePath = dst
		return c.db.UpdateNote(n)
	}

	catID, subID, folderID, _, err := c.pipeline.EnsureCategoryFolders(category, subcategory)
	if err != nil {
		return err
	}
	categoryChanged := n.CategoryID == nil || *n.CategoryID != catID ||
		(subID != 0 && (n.SubcategoryID == nil || *n.SubcategoryID != subID))

	n.FilePath = dst
	n.FolderID = &folderID
	n.CategoryID = &catID
	if subID != 0 {
		n.SubcategoryID = &subID
	} else {
		n.SubcategoryID = nil
	}
	if err := c.db.UpdateNote(n); err != nil {
		return err
	}

	if categoryChanged && n.Status == store.StatusArchive {
		data, err := c.vault.Read(dst)
		if err != nil {
			return err
		}
		parsed := note.Parse(dst, data)
		if err := c.regenerateHeader(ctx, n, parsed); err != nil {
			return c.quarantine(dst, "header", watch.ActionMoved, err)
		}
	}
	return nil
}

func (c *Coordinator) handleDelete(abs string) error {
	n := c.noteAt(abs)
	if n == nil {
		return nil
	}
	if n.ParentID != nil {
		if err := c.db.ClearParent(*n.ParentID); err != nil {
			return err
		}
	}
	if err := c.db.DeleteNote(n.ID); err != nil {
		return err
	}
	c.logger.Info("lifecycle: record removed",
		slog.Int64("id", n.ID),
		slog.String("path", abs))
	return nil
}

func (c *Coordinator) regenerateHeader(ctx context.Context, n *store.Note, parsed *note.Parsed) error {
	header, err := c.pipeline.GenerateHeader(ctx, n.Title, parsed.Body)
	if err != nil {
		return err
	}
	if header.Summary != "" {
		n.Summary = header.Summary
	}
	if err := c.db.UpdateNote(n); err != nil {
		return err
	}
	if len(header.Tags) > 0 {
		return c.db.ReplaceTags(n.ID, header.Tags)
	}
	return nil
}

// quarantine is the terminal failure path for a single note: break the pair
// link before touching the file, move it into the error zone, flag the record
// and journal the failure. Returns nil so the consumer keeps draining.
func (c *Coordinator) quarantine(abs, stage string, action watch.Action, cause error) error {
	c.counters.errors.Add(1)
	c.logger.Error("lifecycle: quarantining note",
		slog.String("path", abs),
		slog.String("stage", stage),
		slog.String("error", cause.Error()))

	n := c.noteAt(abs)
	if n != nil && n.ParentID != nil {
		// Break the link first so the partner is not processed further
		// against a half-updated pair.
		if err := c.db.ClearParent(*n.ParentID); err != nil {
			c.logger.Error("lifecycle: clear partner link failed", slog.String("error", err.Error()))
		}
		if err := c.db.ClearParent(n.ID); err != nil {
			c.logger.Error("lifecycle: clear own link failed", slog.String("error", err.Error()))
		}
		n.ParentID = nil
	}

	finalPath := abs
	if c.vault.Exists(abs) {
		moved, err := c.vault.MoveToDir(abs, c.vault.ZoneDir(vault.ZoneError), "")
		if err != nil {
			c.logger.Error("lifecycle: quarantine move failed", slog.String("error", err.Error()))
		} else {
			finalPath = moved
		}
	}

	if n != nil {
		n.FilePath = finalPath
		n.Status = store.StatusError
		if err := c.db.UpdateNote(n); err != nil {
			c.logger.Error("lifecycle: flag record failed", slog.String("error", err.Error()))
		}
	}

	if err := c.journal.Error(journal.ErrorEntry{
		Path:    finalPath,
		Code:    errorCode(cause),
		Message: cause.Error(),
		Context: map[string]string{
			"stage":  stage,
			"action": action.String(),
		},
	}); err != nil {
		c.logger.Error("lifecycle: journal write failed", slog.String("error", err.Error()))
	}
	return nil
}

// errorCode maps a failure to its taxonomy bucket for the journal.
func errorCode(err error) string {
	switch {
	case errors.Is(err, llm.ErrModelNotFound),
		errors.Is(err, llm.ErrUnavailable),
		errors.Is(err, llm.ErrTimeout),
		errors.Is(err, llm.ErrMalformed):
		return "inference"
	case errors.Is(err, apperr.ErrPathEscape),
		errors.Is(err, apperr.ErrNotFound):
		return "filesystem"
	case errors.Is(err, apperr.ErrConflict):
		return "database"
	default:
		return "unexpected"
	}
}

// noteAt returns the record at path, or nil.
func (c *Coordinator) noteAt(path string) *store.Note {
	if path == "" {
		return nil
	}
	n, err := c.db.NoteByPath(path)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			c.logger.Warn("lifecycle: note lookup failed", slog.String("error", err.Error()))
		}
		return nil
	}
	return n
}

// forgetPath drops a stale record left at the source of a move so the fresh
// import does not collide on the unique path.
func (c *Coordinator) forgetPath(path string) {
	n := c.noteAt(path)
	if n == nil {
		return
	}
	if n.ParentID != nil {
		_ = c.db.ClearParent(*n.ParentID)
	}
	if err := c.db.DeleteNote(n.ID); err != nil {
		c.logger.Warn("lifecycle: stale record cleanup failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// LockKey derives the queue admission key for an event: the note id when the
// store already tracks the path, else the canonical path.
func (c *Coordinator) LockKey(ev watch.Event) string {
	if n := c.noteAt(ev.Path); n != nil {
		return locker.NoteKey(n.ID)
	}
	return locker.PathKey(ev.Path)
}

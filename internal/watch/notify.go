package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// renamePairWindow is how long a Rename waits for its matching Create before
// being demoted to a plain delete.
const renamePairWindow = time.Second

// Notifier detects changes through fsnotify kernel events. It is the low
// latency mode for local disks; directories created at runtime are added to
// the watch list automatically.
type Notifier struct {
	root     string
	debounce *Debouncer
	logger   *slog.Logger
}

// NewNotifier returns an fsnotify-backed watcher rooted at root.
func NewNotifier(root string, debounce *Debouncer, logger *slog.Logger) *Notifier {
	return &Notifier{root: root, debounce: debounce, logger: logger}
}

// Run watches until ctx is cancelled. A Rename on the old path followed
// shortly by a Create with the same base name is coalesced into one move
// event; an unpaired Rename becomes a delete once the pairing window lapses.
func (n *Notifier) Run(ctx context.Context, emit func(Event)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, n.root); err != nil {
		return err
	}
	n.logger.Info("watcher: started", slog.String("mode", "fsnotify"), slog.String("root", n.root))

	// pending holds Rename-ed paths keyed by base name, awaiting a Create.
	pending := make(map[string]pendingRename)
	flush := time.NewTicker(renamePairWindow / 2)
	defer flush.Stop()

	emitFiltered := func(ev Event) {
		if Ignored(ev.Path) {
			return
		}
		if !n.debounce.Allow(ev.Path, ev.Action) {
			return
		}
		emit(ev)
	}

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("watcher: stopped")
			return nil

		case <-flush.C:
			now := time.Now()
			for base, pr := range pending {
				if now.Sub(pr.at) >= renamePairWindow {
					delete(pending, base)
					emitFiltered(Event{Kind: KindFile, Action: ActionDeleted, Path: pr.path})
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						n.logger.Warn("watcher: add new dir failed",
							slog.String("path", abs),
							slog.String("error", addErr.Error()))
					}
					emitFiltered(Event{Kind: KindDirectory, Action: ActionCreated, Path: abs})
					continue
				}
			}

			if !IsNoteFile(abs) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if pr, ok := pending[filepath.Base(abs)]; ok {
					delete(pending, filepath.Base(abs))
					emitFiltered(Event{Kind: KindFile, Action: ActionMoved, Path: abs, SrcPath: pr.path})
					continue
				}
				emitFiltered(Event{Kind: KindFile, Action: ActionCreated, Path: abs})

			case ev.Op&fsnotify.Write != 0:
				emitFiltered(Event{Kind: KindFile, Action: ActionModified, Path: abs})

			case ev.Op&fsnotify.Remove != 0:
				emitFiltered(Event{Kind: KindFile, Action: ActionDeleted, Path: abs})

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a separate Create if it stays under the root.
				pending[filepath.Base(abs)] = pendingRename{path: abs, at: time.Now()}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			n.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

type pendingRename struct {
	path string
	at   time.Time
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IsHidden(path) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

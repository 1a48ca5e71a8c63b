package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"
)

// fingerprint identifies a tree entry across scans. Size plus mtime is enough
// to pair a delete with a create into a move.
type fingerprint struct {
	isDir   bool
	size    int64
	modTime time.Time
}

// Poller detects changes by periodically scanning the tree and diffing
// snapshots. It works on any filesystem that answers stat calls truthfully,
// including network mounts where kernel notification is unreliable.
type Poller struct {
	root     string
	interval time.Duration
	debounce *Debouncer
	logger   *slog.Logger

	prev map[string]fingerprint
}

// NewPoller returns a Poller scanning root every interval.
func NewPoller(root string, interval time.Duration, debounce *Debouncer, logger *slog.Logger) *Poller {
	return &Poller{
		root:     root,
		interval: interval,
		debounce: debounce,
		logger:   logger,
	}
}

// Run scans until ctx is cancelled, emitting debounced events. The first scan
// establishes the baseline snapshot and emits nothing; files already present
// are picked up by startup reconciliation and the import backlog sweep.
func (p *Poller) Run(ctx context.Context, emit func(Event)) error {
	snap, err := p.scan()
	if err != nil {
		return err
	}
	p.prev = snap
	p.logger.Info("watcher: poll baseline", slog.Int("entries", len(snap)), slog.String("root", p.root))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("watcher: stopped")
			return nil
		case <-ticker.C:
			snap, err := p.scan()
			if err != nil {
				p.logger.Warn("watcher: scan failed", slog.String("error", err.Error()))
				continue
			}
			for _, ev := range diffSnapshots(p.prev, snap) {
				if Ignored(ev.Path) {
					continue
				}
				if !p.debounce.Allow(ev.Path, ev.Action) {
					continue
				}
				emit(ev)
			}
			p.prev = snap
		}
	}
}

// scan walks the tree and fingerprints every note file and directory,
// skipping hidden subtrees entirely.
func (p *Poller) scan() (map[string]fingerprint, error) {
	snap := make(map[string]fingerprint, len(p.prev))
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Entries can vanish mid-walk; treat as absent.
			return nil
		}
		if path == p.root {
			return nil
		}
		if IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			snap[abs] = fingerprint{isDir: true}
			return nil
		}
		if !IsNoteFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		snap[abs] = fingerprint{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// diffSnapshots turns two snapshots into events. A removed path and an added
// path with the same file fingerprint are paired into a single move, provided
// the pairing is unambiguous.
func diffSnapshots(prev, cur map[string]fingerprint) []Event {
	var removed []string
	var added []string
	var events []Event

	for path, old := range prev {
		now, ok := cur[path]
		if !ok {
			removed = append(removed, path)
			continue
		}
		if !old.isDir && (now.size != old.size || !now.modTime.Equal(old.modTime)) {
			events = append(events, Event{Kind: KindFile, Action: ActionModified, Path: path})
		}
	}
	for path := range cur {
		if _, ok := prev[path]; !ok {
			added = append(added, path)
		}
	}

	moved := make(map[string]string) // added path -> removed path
	usedRemoved := make(map[string]bool)
	for _, a := range added {
		fp := cur[a]
		if fp.isDir {
			continue
		}
		var match string
		var ambiguous bool
		for _, r := range removed {
			if usedRemoved[r] {
				continue
			}
			old := prev[r]
			if old.isDir || old.size != fp.size || !old.modTime.Equal(fp.modTime) {
				continue
			}
			if match != "" {
				ambiguous = true
				break
			}
			match = r
		}
		if match != "" && !ambiguous {
			moved[a] = match
			usedRemoved[match] = true
		}
	}

	for _, a := range added {
		kind := KindFile
		if cur[a].isDir {
			kind = KindDirectory
		}
		if src, ok := moved[a]; ok {
			events = append(events, Event{Kind: kind, Action: ActionMoved, Path: a, SrcPath: src})
			continue
		}
		events = append(events, Event{Kind: kind, Action: ActionCreated, Path: a})
	}
	for _, r := range removed {
		if usedRemoved[r] {
			continue
		}
		kind := KindFile
		if prev[r].isDir {
			kind = KindDirectory
		}
		events = append(events, Event{Kind: kind, Action: ActionDeleted, Path: r})
	}

	return events
}

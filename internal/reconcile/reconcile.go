// Package reconcile repairs drift between the physical note tree and the
// metadata store: records are created for untracked files, dropped for files
// that no longer exist, and asymmetric archive/synthesis links are mended. It
// runs out-of-band, at startup and on demand, and is idempotent.
package reconcile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kerbin-io/notarius/internal/note"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
)

// Report counts the repairs of one pass. A second pass over an unchanged
// tree must report all zeros.
type Report struct {
	Created  int `json:"created"`
	Removed  int `json:"removed"`
	Repaired int `json:"repaired"`
}

// Zero reports whether the pass changed nothing.
func (r Report) Zero() bool { return r == Report{} }

// Service diffs the tree against the store.
type Service struct {
	db     *store.DB
	vault  *vault.Vault
	logger *slog.Logger
}

// New returns a Service.
func New(db *store.DB, v *vault.Vault, logger *slog.Logger) *Service {
	return &Service{db: db, vault: v, logger: logger}
}

// Run executes one full reconciliation pass.
func (s *Service) Run() (Report, error) {
	var report Report

	files, err := s.vault.List("")
	if err != nil {
		return report, err
	}
	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
	}

	notes, err := s.db.AllNotes()
	if err != nil {
		return report, err
	}
	byPath := make(map[string]*store.Note, len(notes))
	byID := make(map[int64]*store.Note, len(notes))
	for _, n := range notes {
		byPath[n.FilePath] = n
		byID[n.ID] = n
	}

	// Records whose backing file is gone.
	for _, n := range notes {
		if _, ok := onDisk[n.FilePath]; ok {
			continue
		}
		if n.ParentID != nil {
			if err := s.db.ClearParent(*n.ParentID); err != nil {
				return report, err
			}
			if partner, ok := byID[*n.ParentID]; ok {
				partner.ParentID = nil
			}
		}
		if err := s.db.DeleteNote(n.ID); err != nil {
			return report, err
		}
		delete(byID, n.ID)
		delete(byPath, n.FilePath)
		report.Removed++
		s.logger.Info("reconcile: removed orphaned record",
			slog.Int64("id", n.ID),
			slog.String("path", n.FilePath))
	}

	// Files without a record.
	var created []*store.Note
	for _, f := range files {
		if _, ok := byPath[f.Path]; ok {
			continue
		}
		status, track := s.statusFor(f.Path)
		if !track {
			continue
		}
		data, err := s.vault.Read(f.Path)
		if err != nil {
			s.logger.Warn("reconcile: unreadable file skipped",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
			continue
		}
		parsed := note.Parse(f.Path, data)
		n := &store.Note{
			Title:       parsed.Title,
			FilePath:    f.Path,
			Status:      status,
			Summary:     parsed.Summary,
			Source:      parsed.Source,
			Author:      parsed.Author,
			Project:     parsed.Project,
			Lang:        parsed.Lang,
			WordCount:   parsed.WordCount,
			ContentHash: parsed.ContentHash,
			SourceHash:  parsed.SourceHash,
		}
		if cat, sub, ok := s.vault.CategoryFromPath(f.Path); ok && status != store.StatusUncategorized {
			if err := s.attachCategory(n, cat, sub); err != nil {
				return report, err
			}
		}
		id, err := s.db.InsertNote(n)
		if err != nil {
			return report, fmt.Errorf("reconcile: track %s: %w", f.Path, err)
		}
		byID[id] = n
		byPath[f.Path] = n
		created = append(created, n)
		report.Created++
		s.logger.Info("reconcile: tracked untracked file",
			slog.Int64("id", id),
			slog.String("path", f.Path),
			slog.String("status", string(status)))
	}

	// A freshly tracked synthesis file pairs with the archive sharing its
	// stem. Done after the create pass so order of discovery does not matter.
	for _, n := range created {
		if n.Status != store.StatusSynthesis || n.ParentID != nil {
			continue
		}
		archivePath := strings.Replace(n.FilePath, " (synthesis)", "", 1)
		archive, ok := byPath[archivePath]
		if !ok || archive.Status != store.StatusArchive || archive.ParentID != nil {
			continue
		}
		if err := s.db.SetPair(archive.ID, n.ID); err != nil {
			return report, err
		}
		archive.ParentID = &n.ID
		n.ParentID = &archive.ID
	}

	// Asymmetric pair links.
	for _, n := range byID {
		if n.ParentID == nil {
			continue
		}
		partner, ok := byID[*n.ParentID]
		if !ok {
			if err := s.db.ClearParent(n.ID); err != nil {
				return report, err
			}
			n.ParentID = nil
			report.Repaired++
			s.logger.Warn("reconcile: cleared dangling pair link", slog.Int64("id", n.ID))
			continue
		}
		if partner.ParentID != nil && *partner.ParentID == n.ID {
			continue // reciprocal, healthy
		}
		if partner.ParentID == nil && pairable(n, partner) {
			archiveID, synthesisID := n.ID, partner.ID
			if n.Status == store.StatusSynthesis {
				archiveID, synthesisID = partner.ID, n.ID
			}
			if err := s.db.SetPair(archiveID, synthesisID); err != nil {
				return report, err
			}
			partner.ParentID = &n.ID
			report.Repaired++
			s.logger.Info("reconcile: restored reciprocal link",
				slog.Int64("archive_id", archiveID),
				slog.Int64("synthesis_id", synthesisID))
			continue
		}
		// Partner points elsewhere: break this side rather than steal it.
		if err := s.db.ClearParent(n.ID); err != nil {
			return report, err
		}
		n.ParentID = nil
		report.Repaired++
		s.logger.Warn("reconcile: cleared one-sided pair link",
			slog.Int64("id", n.ID),
			slog.Int64("partner_id", partner.ID))
	}

	return report, nil
}

// statusFor derives the record status a file should have from its zone. Files
// in the import zone are pending intake and stay untracked; drafts, templates
// and unmanaged paths are not the engine's records to create.
func (s *Service) statusFor(path string) (store.Status, bool) {
	switch s.vault.ZoneOf(path) {
	case vault.ZoneStorage:
		if strings.Contains(path, "(synthesis)") {
			return store.StatusSynthesis, true
		}
		return store.StatusArchive, true
	case vault.ZoneUncategorized:
		return store.StatusUncategorized, true
	case vault.ZoneDuplicates:
		return store.StatusDuplicate, true
	case vault.ZoneError:
		return store.StatusError, true
	default:
		return "", false
	}
}

// pairable reports whether two records form a legal archive/synthesis pair.
func pairable(a, b *store.Note) bool {
	return (a.Status == store.StatusArchive && b.Status == store.StatusSynthesis) ||
		(a.Status == store.StatusSynthesis && b.Status == store.StatusArchive)
}

func (s *Service) attachCategory(n *store.Note, category, subcategory string) error {
	catID, err := s.db.EnsureCategory(category, nil, "", "")
	if err != nil {
		return err
	}
	n.CategoryID = &catID
	if subcategory != "" {
		subID, err := s.db.EnsureCategory(subcategory, &catID, "", "")
		if err != nil {
			return err
		}
		n.SubcategoryID = &subID
	}
	return nil
}

package reconcile

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/testutil"
	"github.com/kerbin-io/notarius/internal/vault"
)

func testService(t *testing.T) (*Service, *store.DB, *vault.Vault) {
	t.Helper()
	db := testutil.TestDB(t)
	v := testutil.TestVault(t)
	s := New(db, v, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, db, v
}

func writeNote(t *testing.T, v *vault.Vault, path, content string) string {
	t.Helper()
	if err := v.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	abs, err := v.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	return abs
}

func TestRunTracksUntrackedTreeAndIsIdempotent(t *testing.T) {
	s, db, v := testService(t)

	archivePath := writeNote(t, v, "Notes/Tech/Networking/2026-01-15 sockets.md",
		"# Sockets\n\noriginal body.\n")
	synthPath := writeNote(t, v, "Notes/Tech/Networking/2026-01-15 sockets (synthesis).md",
		"# Sockets\n\ndistilled body.\n")
	writeNote(t, v, "Uncategorized/mystery.md", "# Mystery\n\nunplaced.\n")
	writeNote(t, v, "Inbox/pending.md", "# Pending\n\nawaiting import.\n")

	report, err := s.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Created != 3 {
		t.Errorf("created = %d, want 3 (import zone stays untracked)", report.Created)
	}

	archive, err := db.NoteByPath(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	synthesis, err := db.NoteByPath(synthPath)
	if err != nil {
		t.Fatal(err)
	}
	if archive.Status != store.StatusArchive || synthesis.Status != store.StatusSynthesis {
		t.Errorf("statuses = %s / %s", archive.Status, synthesis.Status)
	}
	if archive.ParentID == nil || *archive.ParentID != synthesis.ID {
		t.Errorf("archive parent = %v", archive.ParentID)
	}
	if synthesis.ParentID == nil || *synthesis.ParentID != archive.ID {
		t.Errorf("synthesis parent = %v", synthesis.ParentID)
	}
	if archive.CategoryID == nil {
		t.Error("category not derived from storage path")
	}

	second, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !second.Zero() {
		t.Errorf("second pass = %+v, want all zeros", second)
	}
}

func TestRunRemovesOrphanedRecordAndClearsPartner(t *testing.T) {
	s, db, v := testService(t)

	archivePath := writeNote(t, v, "Notes/Tech/Networking/a.md", "body a\n")
	synthPath := writeNote(t, v, "Notes/Tech/Networking/a (synthesis).md", "body s\n")
	if _, err := s.Run(); err != nil {
		t.Fatal(err)
	}
	archive, err := db.NoteByPath(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(synthPath); err != nil {
		t.Fatal(err)
	}
	report, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.Removed != 1 {
		t.Errorf("removed = %d, want 1", report.Removed)
	}

	archive, err = db.NoteByID(archive.ID)
	if err != nil {
		t.Fatalf("archive record deleted too: %v", err)
	}
	if archive.ParentID != nil {
		t.Errorf("archive parent = %v, want nil", archive.ParentID)
	}
	if _, err := db.NoteByPath(synthPath); err == nil {
		t.Error("synthesis record still present")
	}

	again, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !again.Zero() {
		t.Errorf("third pass = %+v", again)
	}
}

func TestRunRepairsAsymmetricLink(t *testing.T) {
	s, db, v := testService(t)

	archivePath := writeNote(t, v, "Notes/Tech/a.md", "a\n")
	synthPath := writeNote(t, v, "Notes/Tech/a (synthesis).md", "s\n")

	archive := &store.Note{Title: "a", FilePath: archivePath, Status: store.StatusArchive}
	if _, err := db.InsertNote(archive); err != nil {
		t.Fatal(err)
	}
	synthesis := &store.Note{Title: "a", FilePath: synthPath, Status: store.StatusSynthesis}
	if _, err := db.InsertNote(synthesis); err != nil {
		t.Fatal(err)
	}
	// One-sided link: only the archive points at its synthesis.
	archive.ParentID = &synthesis.ID
	if err := db.UpdateNote(archive); err != nil {
		t.Fatal(err)
	}

	report, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.Repaired != 1 {
		t.Errorf("repaired = %d, want 1", report.Repaired)
	}
	got, err := db.NoteByID(synthesis.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID == nil || *got.ParentID != archive.ID {
		t.Errorf("synthesis parent = %v, want %d", got.ParentID, archive.ID)
	}

	again, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if !again.Zero() {
		t.Errorf("second pass = %+v", again)
	}
}

func TestRunClearsDanglingLink(t *testing.T) {
	s, db, v := testService(t)

	path := writeNote(t, v, "Notes/Tech/b.md", "b\n")
	missing := int64(9999)
	n := &store.Note{Title: "b", FilePath: path, Status: store.StatusArchive, ParentID: &missing}
	if _, err := db.InsertNote(n); err != nil {
		t.Fatal(err)
	}

	report, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.Repaired != 1 {
		t.Errorf("repaired = %d, want 1", report.Repaired)
	}
	got, err := db.NoteByID(n.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID != nil {
		t.Errorf("parent = %v, want nil", got.ParentID)
	}
}

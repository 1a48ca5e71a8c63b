package store

import (
	"errors"
	"os"
	"testing"

	"github.com/kerbin-io/notarius/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "notarius-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndLookupNote(t *testing.T) {
	db := testDB(t)
	n := &Note{
		Title:       "Routing Basics",
		FilePath:    "/v/Notes/Tech/Networking/2026-09-01 Routing Basics.md",
		Status:      StatusArchive,
		WordCount:   240,
		ContentHash: "abc",
	}
	id, err := db.InsertNote(n)
	if err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	if id == 0 {
		t.Fatal("id not assigned")
	}

	byPath, err := db.NoteByPath(n.FilePath)
	if err != nil {
		t.Fatalf("NoteByPath: %v", err)
	}
	if byPath.ID != id || byPath.Status != StatusArchive || byPath.WordCount != 240 {
		t.Errorf("unexpected row %+v", byPath)
	}

	if _, err := db.NoteByPath("/nope.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing note err = %v, want ErrNotFound", err)
	}
}

func TestFilePathUnique(t *testing.T) {
	db := testDB(t)
	n := &Note{FilePath: "/v/a.md", Status: StatusDraft}
	if _, err := db.InsertNote(n); err != nil {
		t.Fatalf("InsertNote: %v", err)
	}
	if _, err := db.InsertNote(&Note{FilePath: "/v/a.md", Status: StatusDraft}); err == nil {
		t.Fatal("duplicate file_path accepted")
	}
}

func TestSetPairAndClearParent(t *testing.T) {
	db := testDB(t)
	archID, _ := db.InsertNote(&Note{FilePath: "/v/arch.md", Status: StatusArchive})
	synthID, _ := db.InsertNote(&Note{FilePath: "/v/synth.md", Status: StatusSynthesis})

	if err := db.SetPair(archID, synthID); err != nil {
		t.Fatalf("SetPair: %v", err)
	}
	arch, _ := db.NoteByID(archID)
	synth, _ := db.NoteByID(synthID)
	if arch.ParentID == nil || *arch.ParentID != synthID {
		t.Errorf("archive parent = %v, want %d", arch.ParentID, synthID)
	}
	if synth.ParentID == nil || *synth.ParentID != archID {
		t.Errorf("synthesis parent = %v, want %d", synth.ParentID, archID)
	}

	if err := db.ClearParent(synthID); err != nil {
		t.Fatalf("ClearParent: %v", err)
	}
	synth, _ = db.NoteByID(synthID)
	if synth.ParentID != nil {
		t.Error("parent not cleared")
	}
}

func TestDeleteNoteRemovesTagsAndBlocks(t *testing.T) {
	db := testDB(t)
	id, _ := db.InsertNote(&Note{FilePath: "/v/a.md", Status: StatusArchive})
	_ = db.ReplaceTags(id, []string{"x", "y"})
	key := BlockKey{NoteID: id, BlockIndex: 0, Prompt: "p", Model: "m", SplitMethod: "words", WordLimit: 100, Source: "text"}
	if _, err := db.EnsureBlock(key, "content"); err != nil {
		t.Fatalf("EnsureBlock: %v", err)
	}

	if err := db.DeleteNote(id); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	tags, _ := db.Tags(id)
	if len(tags) != 0 {
		t.Error("tags survived delete")
	}
	blocks, _ := db.BlocksForRun(key)
	if len(blocks) != 0 {
		t.Error("blocks survived delete")
	}
}

func TestHashLookups(t *testing.T) {
	db := testDB(t)
	_, _ = db.InsertNote(&Note{FilePath: "/v/a.md", Status: StatusArchive, ContentHash: "ch", SourceHash: "sh"})
	// Draft rows with the same hashes must not count as duplicates.
	_, _ = db.InsertNote(&Note{FilePath: "/v/d.md", Status: StatusDraft, ContentHash: "ch2", SourceHash: "sh2"})

	n, err := db.NoteByContentHash("ch")
	if err != nil || n == nil {
		t.Fatalf("NoteByContentHash: %v %v", n, err)
	}
	if n, _ := db.NoteByContentHash("ch2"); n != nil {
		t.Error("draft matched as archive duplicate")
	}
	if n, _ := db.NoteBySourceHash("sh"); n == nil {
		t.Error("source hash lookup failed")
	}
	if n, _ := db.NoteBySourceHash(""); n != nil {
		t.Error("empty hash should never match")
	}
}

func TestEnsureFolderIdempotent(t *testing.T) {
	db := testDB(t)
	f := &Folder{Name: "Networking", Path: "/v/Notes/Tech/Networking", Type: FolderStorage}
	id1, err := db.EnsureFolder(f)
	if err != nil {
		t.Fatalf("EnsureFolder: %v", err)
	}
	id2, err := db.EnsureFolder(&Folder{Name: "Networking", Path: f.Path, Type: FolderStorage})
	if err != nil {
		t.Fatalf("EnsureFolder again: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}
}

func TestEnsureCategoryHierarchy(t *testing.T) {
	db := testDB(t)
	techID, err := db.EnsureCategory("Tech", nil, "technical notes", "")
	if err != nil {
		t.Fatalf("EnsureCategory: %v", err)
	}
	netID, err := db.EnsureCategory("Networking", &techID, "", "")
	if err != nil {
		t.Fatalf("EnsureCategory sub: %v", err)
	}
	again, _ := db.EnsureCategory("Tech", nil, "", "")
	if again != techID {
		t.Errorf("top-level category duplicated: %d vs %d", again, techID)
	}

	cats, err := db.Categories()
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("categories = %d, want 2", len(cats))
	}
	if cats[0].ID != techID || cats[1].ID != netID {
		t.Errorf("order wrong: %+v", cats)
	}
}

func TestBlockResumeLifecycle(t *testing.T) {
	db := testDB(t)
	id, _ := db.InsertNote(&Note{FilePath: "/v/a.md", Status: StatusArchive})
	key := BlockKey{NoteID: id, BlockIndex: 0, Prompt: "summarize", Model: "llama3.1", SplitMethod: "headings", WordLimit: 800, Source: "text"}

	b, err := db.EnsureBlock(key, "first block")
	if err != nil {
		t.Fatalf("EnsureBlock: %v", err)
	}
	if b.Status != BlockWaiting || b.Content != "first block" {
		t.Fatalf("fresh block = %+v", b)
	}

	if err := db.SetBlockResult(key, "the response", BlockProcessed); err != nil {
		t.Fatalf("SetBlockResult: %v", err)
	}

	// Re-ensuring must return the processed row, not reset it.
	b, err = db.EnsureBlock(key, "first block")
	if err != nil {
		t.Fatalf("EnsureBlock resume: %v", err)
	}
	if b.Status != BlockProcessed || b.Response != "the response" {
		t.Fatalf("resumed block = %+v", b)
	}

	// A different word limit is a different identity.
	other := key
	other.WordLimit = 400
	b2, err := db.EnsureBlock(other, "first block")
	if err != nil {
		t.Fatalf("EnsureBlock other: %v", err)
	}
	if b2.Status != BlockWaiting {
		t.Fatalf("distinct identity reused row: %+v", b2)
	}

	if err := db.DeleteBlocksForRun(key); err != nil {
		t.Fatalf("DeleteBlocksForRun: %v", err)
	}
	if b, _ := db.BlockByKey(key); b != nil {
		t.Error("block survived run delete")
	}
}

func TestArchiveTitles(t *testing.T) {
	db := testDB(t)
	_, _ = db.InsertNote(&Note{FilePath: "/v/a.md", Title: "Kubernetes Patterns", Status: StatusArchive})
	_, _ = db.InsertNote(&Note{FilePath: "/v/b.md", Title: "Draft Thing", Status: StatusDraft})

	titles, err := db.ArchiveTitles()
	if err != nil {
		t.Fatalf("ArchiveTitles: %v", err)
	}
	if len(titles) != 1 || titles[0].Title != "Kubernetes Patterns" {
		t.Errorf("titles = %+v", titles)
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseStatus("banana"); err == nil {
		t.Fatal("unknown status accepted")
	}
	s, err := ParseStatus("synthesis")
	if err != nil || s != StatusSynthesis {
		t.Fatalf("ParseStatus = %v, %v", s, err)
	}
}

package vault

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kerbin-io/notarius/internal/apperr"
)

func testLayout() Layout {
	return Layout{
		Import:        "Inbox",
		Storage:       "Notes",
		Uncategorized: "Uncategorized",
		Duplicates:    "Duplicates",
		Error:         "Errors",
		Drafts:        "Drafts",
		Templates:     "Templates",
	}
}

func testVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(t.TempDir(), testLayout())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.EnsureLayout(); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	return v
}

func TestResolveRejectsEscape(t *testing.T) {
	v := testVault(t)
	for _, p := range []string{"../outside.md", "Inbox/../../x.md", "/etc/passwd"} {
		if _, err := v.Resolve(p); !errors.Is(err, apperr.ErrPathEscape) {
			t.Errorf("Resolve(%q) err = %v, want ErrPathEscape", p, err)
		}
	}
}

func TestResolveAcceptsInside(t *testing.T) {
	v := testVault(t)
	abs, err := v.Resolve("Inbox/a.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(abs, v.Root()) {
		t.Fatalf("resolved outside root: %s", abs)
	}
}

func TestWriteReadDelete(t *testing.T) {
	v := testVault(t)
	if err := v.Write("Inbox/a.md", []byte("# Hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := v.Read("Inbox/a.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "# Hello\n" {
		t.Errorf("content = %q", data)
	}
	if err := v.Delete("Inbox/a.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Read("Inbox/a.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Read after delete err = %v, want ErrNotFound", err)
	}
}

func TestListSkipsHiddenAndNonNotes(t *testing.T) {
	v := testVault(t)
	_ = v.Write("Inbox/a.md", []byte("a"))
	_ = v.Write("Notes/Tech/b.txt", []byte("b"))
	_ = os.MkdirAll(filepath.Join(v.Root(), ".trash"), 0o755)
	_ = os.WriteFile(filepath.Join(v.Root(), ".trash", "c.md"), []byte("c"), 0o644)
	_ = os.WriteFile(filepath.Join(v.Root(), "Inbox", "img.png"), []byte{1}, 0o644)

	metas, err := v.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List returned %d entries, want 2: %+v", len(metas), metas)
	}
}

func TestMoveToDirCollisionSuffix(t *testing.T) {
	v := testVault(t)
	_ = v.Write("Inbox/a.md", []byte("one"))
	_ = v.Write("Notes/a.md", []byte("existing"))

	dst, err := v.MoveToDir("Inbox/a.md", "Notes", "")
	if err != nil {
		t.Fatalf("MoveToDir: %v", err)
	}
	if filepath.Base(dst) != "a 2.md" {
		t.Errorf("dst base = %q, want %q", filepath.Base(dst), "a 2.md")
	}
	data, _ := os.ReadFile(dst)
	if string(data) != "one" {
		t.Errorf("moved content = %q", data)
	}
	if v.Exists("Inbox/a.md") {
		t.Error("source still exists after move")
	}
}

func TestZoneOf(t *testing.T) {
	v := testVault(t)
	tests := []struct {
		rel  string
		zone Zone
	}{
		{"Inbox/a.md", ZoneImport},
		{"Notes/Tech/Networking/a.md", ZoneStorage},
		{"Uncategorized/a.md", ZoneUncategorized},
		{"Duplicates/a.md", ZoneDuplicates},
		{"Errors/a.md", ZoneError},
		{"stray.md", ZoneOther},
	}
	for _, tt := range tests {
		abs := filepath.Join(v.Root(), filepath.FromSlash(tt.rel))
		if got := v.ZoneOf(abs); got != tt.zone {
			t.Errorf("ZoneOf(%s) = %v, want %v", tt.rel, got, tt.zone)
		}
	}
}

func TestCategoryRoundTrip(t *testing.T) {
	v := testVault(t)
	dir := v.CategoryPath("Tech", "Networking")
	abs := filepath.Join(dir, "a.md")
	cat, sub, ok := v.CategoryFromPath(abs)
	if !ok || cat != "Tech" || sub != "Networking" {
		t.Fatalf("CategoryFromPath = %q/%q ok=%v", cat, sub, ok)
	}

	cat, sub, ok = v.CategoryFromPath(filepath.Join(v.CategoryPath("Ideas", ""), "b.md"))
	if !ok || cat != "Ideas" || sub != "" {
		t.Fatalf("top-level CategoryFromPath = %q/%q ok=%v", cat, sub, ok)
	}

	if _, _, ok := v.CategoryFromPath(filepath.Join(v.ZoneDir(ZoneImport), "c.md")); ok {
		t.Fatal("import-zone path should not resolve a category")
	}
}

func TestDatedName(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := DatedName(day, "Meeting.md"); got != "2026-09-01 Meeting.md" {
		t.Errorf("DatedName = %q", got)
	}
	// Already dated names stay untouched.
	if got := DatedName(day, "2025-03-02 Old.md"); got != "2025-03-02 Old.md" {
		t.Errorf("DatedName kept = %q", got)
	}
}

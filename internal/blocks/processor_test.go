package blocks

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest(noteID int64) Request {
	return Request{
		NoteID:     noteID,
		Content:    "# One\nalpha beta gamma\n# Two\ndelta epsilon zeta",
		PromptKey:  "summarize",
		PromptText: "Summarize this section.",
		Model:      "llama3.1",
		Method:     SplitHeadings,
		WordLimit:  800,
		Source:     SourceText,
		Persist:    true,
		Resume:     true,
	}
}

func TestProcessPersistsAndJoins(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	fake := &testutil.FakeLLM{}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())

	out, err := p.Process(context.Background(), testRequest(id))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if fake.GenerateCalls != 2 {
		t.Errorf("generate calls = %d, want 2", fake.GenerateCalls)
	}
	if !strings.Contains(out, "response 1") || !strings.Contains(out, "response 2") {
		t.Errorf("output = %q", out)
	}
	// Responses without headings get synthesized ones, in block order.
	if strings.Index(out, "response 1") > strings.Index(out, "response 2") {
		t.Errorf("block order lost: %q", out)
	}
}

func TestProcessResumeSkipsInference(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	fake := &testutil.FakeLLM{}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())

	req := testRequest(id)
	first, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("first Process: %v", err)
	}
	calls := fake.Calls()

	second, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if fake.Calls() != calls {
		t.Errorf("resume re-invoked inference: %d -> %d calls", calls, fake.Calls())
	}
	if first != second {
		t.Errorf("resumed output differs:\n%q\n%q", first, second)
	}
}

func TestProcessNoResumeRecomputes(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	fake := &testutil.FakeLLM{}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())

	req := testRequest(id)
	if _, err := p.Process(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	req.Resume = false
	if _, err := p.Process(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if fake.GenerateCalls != 4 {
		t.Errorf("generate calls = %d, want 4 (full recompute)", fake.GenerateCalls)
	}
}

func TestProcessContinuesPastFailedBlock(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	call := 0
	fake := &testutil.FakeLLM{
		GenerateFn: func(prompt, model string) (string, error) {
			call++
			if call == 1 {
				return "", llm.ErrModelNotFound
			}
			return "survivor", nil
		},
	}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())

	out, err := p.Process(context.Background(), testRequest(id))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out, "survivor") {
		t.Errorf("second block missing: %q", out)
	}

	key := store.BlockKey{NoteID: id, Prompt: "summarize", Model: "llama3.1", SplitMethod: string(SplitHeadings), WordLimit: 800, Source: SourceText}
	rows, err := db.BlocksForRun(key)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Status != store.BlockError {
		t.Errorf("first block status = %s, want error", rows[0].Status)
	}
	if rows[1].Status != store.BlockProcessed {
		t.Errorf("second block status = %s, want processed", rows[1].Status)
	}
}

func TestProcessEmbeddingsStoresVectors(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	fake := &testutil.FakeLLM{}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())

	req := testRequest(id)
	req.Source = SourceEmbeddings
	req.Model = "nomic-embed-text"
	if _, err := p.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if fake.EmbedCalls != 2 {
		t.Errorf("embed calls = %d, want 2", fake.EmbedCalls)
	}

	texts, vectors, err := p.RunVectors(req)
	if err != nil {
		t.Fatalf("RunVectors: %v", err)
	}
	if len(texts) != 2 || len(vectors) != 2 {
		t.Fatalf("texts/vectors = %d/%d, want 2/2", len(texts), len(vectors))
	}
	if len(vectors[0]) == 0 {
		t.Error("empty vector decoded")
	}
}

func TestProcessEmptyContent(t *testing.T) {
	db := testutil.TestDB(t)
	fake := &testutil.FakeLLM{}
	p := NewProcessor(db, fake, 2, time.Millisecond, discard())
	req := testRequest(1)
	req.Content = "   "
	out, err := p.Process(context.Background(), req)
	if err != nil || out != "" {
		t.Fatalf("empty content: %q, %v", out, err)
	}
	if fake.Calls() != 0 {
		t.Error("inference called for empty content")
	}
}

func TestProcessRejectsUnknownMethod(t *testing.T) {
	db := testutil.TestDB(t)
	p := NewProcessor(db, &testutil.FakeLLM{}, 1, time.Millisecond, discard())
	req := testRequest(1)
	req.Method = SplitMethod("nope")
	if _, err := p.Process(context.Background(), req); err == nil {
		t.Fatal("unknown method accepted")
	}
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	db := testutil.TestDB(t)
	id, _ := db.InsertNote(&store.Note{FilePath: "/v/a.md", Status: store.StatusArchive})
	var calls int
	fake := &testutil.FakeLLM{
		GenerateFn: func(prompt, model string) (string, error) {
			calls++
			if calls%2 == 1 {
				return "", llm.ErrUnavailable
			}
			return "recovered", nil
		},
	}
	p := NewProcessor(db, fake, 3, time.Millisecond, discard())

	out, err := p.Process(context.Background(), testRequest(id))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(out, "recovered") {
		t.Errorf("out = %q", out)
	}
}

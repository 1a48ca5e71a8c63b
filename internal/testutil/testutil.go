// Package testutil provides shared test helpers for setting up vaults,
// databases, and a fake inference provider.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
)

// TestDB creates a temporary SQLite metadata store that is cleaned up with
// the test.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	f, err := os.CreateTemp("", "notarius-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLayout is the zone layout used across tests.
func TestLayout() vault.Layout {
	return vault.Layout{
		Import:        "Inbox",
		Storage:       "Notes",
		Uncategorized: "Uncategorized",
		Duplicates:    "Duplicates",
		Error:         "Errors",
		Drafts:        "Drafts",
		Templates:     "Templates",
	}
}

// TestVault creates a temporary vault with the standard layout.
func TestVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(t.TempDir(), TestLayout())
	if err != nil {
		t.Fatal(err)
	}
	if err := v.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	return v
}

// FakeLLM is an in-memory inference provider that records calls and serves
// canned responses.
type FakeLLM struct {
	mu sync.Mutex

	// GenerateFn overrides the default echo behavior when set.
	GenerateFn func(prompt, model string) (string, error)
	// EmbedFn overrides the default deterministic vector when set.
	EmbedFn func(text, model string) ([]float32, error)

	GenerateCalls int
	EmbedCalls    int
}

// Generate implements llm.Provider.
func (f *FakeLLM) Generate(ctx context.Context, prompt, model string) (string, error) {
	f.mu.Lock()
	f.GenerateCalls++
	fn := f.GenerateFn
	n := f.GenerateCalls
	f.mu.Unlock()
	if fn != nil {
		return fn(prompt, model)
	}
	return fmt.Sprintf("response %d", n), nil
}

// Embed implements llm.Provider.
func (f *FakeLLM) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.mu.Lock()
	f.EmbedCalls++
	fn := f.EmbedFn
	f.mu.Unlock()
	if fn != nil {
		return fn(text, model)
	}
	// Deterministic small vector derived from content length.
	l := float32(len(text)%7 + 1)
	return []float32{l, l / 2, 1}, nil
}

// Calls returns the total number of inference calls made.
func (f *FakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.GenerateCalls + f.EmbedCalls
}

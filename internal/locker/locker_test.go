package locker

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireTwiceThenRelease(t *testing.T) {
	m := New()
	if !m.Acquire("note:1") {
		t.Fatal("first acquire should succeed")
	}
	if m.Acquire("note:1") {
		t.Fatal("second acquire should fail while held")
	}
	m.Release("note:1")
	if !m.Acquire("note:1") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestIsLocked(t *testing.T) {
	m := New()
	if m.IsLocked("path:/a") {
		t.Fatal("unheld key reported locked")
	}
	m.Acquire("path:/a")
	if !m.IsLocked("path:/a") {
		t.Fatal("held key not reported locked")
	}
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	m := New()
	m.Release("nope") // must not panic
	if m.Count() != 0 {
		t.Fatalf("count = %d, want 0", m.Count())
	}
}

func TestPurgeExpired(t *testing.T) {
	m := New()
	m.Acquire("old")
	// Backdate the entry so it looks stuck.
	m.mu.Lock()
	m.held["old"] = time.Now().Add(-3 * time.Hour)
	m.mu.Unlock()
	m.Acquire("fresh")

	purged := m.PurgeExpired(2 * time.Hour)
	if len(purged) != 1 || purged[0] != "old" {
		t.Fatalf("purged = %v, want [old]", purged)
	}
	if m.IsLocked("old") {
		t.Fatal("purged key still held")
	}
	if !m.IsLocked("fresh") {
		t.Fatal("fresh key purged")
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	m := New()
	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("contested") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("winners = %d, want 1", count)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := NoteKey(42); got != "note:42" {
		t.Errorf("NoteKey = %q", got)
	}
	if got := PathKey("/vault/a.md"); got != "path:/vault/a.md" {
		t.Errorf("PathKey = %q", got)
	}
}

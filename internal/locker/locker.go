// Package locker provides admission-control mutual exclusion keyed by note id
// or canonical path. Acquisition is a fast fail, never a wait: a second caller
// holding the same key is turned away so duplicate work is dropped rather than
// queued.
package locker

import (
	"fmt"
	"sync"
	"time"
)

// Manager tracks held keys with their acquisition time.
type Manager struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{held: make(map[string]time.Time)}
}

// Acquire takes the lock for key. It returns false without blocking when the
// key is already held.
func (m *Manager) Acquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false
	}
	m.held[key] = time.Now()
	return true
}

// Release frees key. Releasing an unheld key is a no-op.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

// IsLocked reports whether key is currently held.
func (m *Manager) IsLocked(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

// Count returns the number of held keys.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}

// PurgeExpired force-releases every key held longer than timeout and returns
// the purged keys. A key that old means its holder crashed without releasing.
func (m *Manager) PurgeExpired(timeout time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged []string
	now := time.Now()
	for key, acquired := range m.held {
		if now.Sub(acquired) > timeout {
			delete(m.held, key)
			purged = append(purged, key)
		}
	}
	return purged
}

// NoteKey returns the lock key for a note known to the store.
func NoteKey(id int64) string {
	return fmt.Sprintf("note:%d", id)
}

// PathKey returns the lock key for a path not yet tracked by the store.
func PathKey(canonical string) string {
	return "path:" + canonical
}

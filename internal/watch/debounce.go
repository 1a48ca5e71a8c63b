package watch

import (
	"sync"
	"time"
)

// Debouncer suppresses repeat occurrences of the same (path, action) pair
// inside a sliding window. It uses the monotonic clock carried by time.Time,
// so wall-clock adjustments cannot widen or collapse the window.
type Debouncer struct {
	window time.Duration

	mu   sync.Mutex
	seen map[debounceKey]time.Time
}

type debounceKey struct {
	path   string
	action Action
}

// NewDebouncer returns a Debouncer with the given suppression window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		seen:   make(map[debounceKey]time.Time),
	}
}

// Allow reports whether an event for (path, action) should pass. The first
// occurrence passes and starts the window; occurrences inside the window are
// suppressed and do not extend it.
func (d *Debouncer) Allow(path string, action Action) bool {
	k := debounceKey{path: path, action: action}
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.seen[k]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[k] = now
	return true
}

// Sweep drops entries older than the window so the map does not grow with
// every path ever seen. Call it periodically from a maintenance pass.
func (d *Debouncer) Sweep() {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, last := range d.seen {
		if now.Sub(last) >= d.window {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of tracked entries.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

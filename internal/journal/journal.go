// Package journal appends structured JSON entries to per-concern log files.
// Entries are one JSON object per line, keyed by the destination path of the
// file they describe; nothing ever rewrites an existing line.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal writes JSONL entries to files under a directory.
type Journal struct {
	dir string
	mu  sync.Mutex
}

// New returns a Journal writing under dir, creating it when missing.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	return &Journal{dir: dir}, nil
}

// UncategorizedEntry records a note the classifier could not place.
type UncategorizedEntry struct {
	Path         string    `json:"path"`
	OriginalType string    `json:"original_type"`
	ModelText    string    `json:"model_text"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorEntry records a note quarantined by a processing failure.
type ErrorEntry struct {
	Path      string            `json:"path"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Uncategorized appends an entry to the uncategorized journal.
func (j *Journal) Uncategorized(e UncategorizedEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return j.append("uncategorized.jsonl", e)
}

// Error appends an entry to the error journal.
func (j *Journal) Error(e ErrorEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return j.append("errors.jsonl", e)
}

func (j *Journal) append(name string, entry any) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: write %s: %w", name, err)
	}
	return nil
}

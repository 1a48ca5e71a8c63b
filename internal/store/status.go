package store

import "fmt"

// Status is the lifecycle state of a note record. Values are stored as text
// in SQLite; the typed wrapper keeps switches exhaustive in Go code.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusArchive       Status = "archive"
	StatusSynthesis     Status = "synthesis"
	StatusDuplicate     Status = "duplicate"
	StatusError         Status = "error"
	StatusUncategorized Status = "uncategorized"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusArchive, StatusSynthesis, StatusDuplicate, StatusError, StatusUncategorized:
		return true
	}
	return false
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("store: unknown status %q", raw)
	}
	return s, nil
}

// FolderType classifies a managed folder.
type FolderType string

const (
	FolderArchive       FolderType = "archive"
	FolderStorage       FolderType = "storage"
	FolderTechnical     FolderType = "technical"
	FolderProject       FolderType = "project"
	FolderPersonal      FolderType = "personal"
	FolderDuplicates    FolderType = "duplicates"
	FolderError         FolderType = "error"
	FolderDraft         FolderType = "draft"
	FolderUncategorized FolderType = "uncategorized"
	FolderTemplates     FolderType = "templates"
	FolderDaily         FolderType = "daily"
	FolderGPT           FolderType = "gpt"
)

// BlockStatus is the processing state of one resumable block.
type BlockStatus string

const (
	BlockWaiting   BlockStatus = "waiting"
	BlockProcessed BlockStatus = "processed"
	BlockError     BlockStatus = "error"
)

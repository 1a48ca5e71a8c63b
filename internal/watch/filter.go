package watch

import (
	"path/filepath"
	"regexp"
	"strings"
)

// noteExtensions are the file types treated as notes.
var noteExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// placeholderRe matches editor placeholder names like "Untitled", "untitled 3"
// or "New Note 12", which appear while a user is still typing a real name.
var placeholderRe = regexp.MustCompile(`^(untitled|new note)( ?\d+)?$`)

// IsNoteFile reports whether path has a recognized note extension.
func IsNoteFile(path string) bool {
	return noteExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsHidden reports whether any segment of path starts with a dot.
func IsHidden(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether the base name (without extension) is an
// editor placeholder.
func IsPlaceholder(path string) bool {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return placeholderRe.MatchString(strings.ToLower(strings.TrimSpace(base)))
}

// Ignored reports whether the watcher should discard events for path.
func Ignored(path string) bool {
	return IsHidden(path) || IsPlaceholder(path)
}

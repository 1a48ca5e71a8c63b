package pipeline

import (
	"log/slog"
	"strings"

	"github.com/kerbin-io/notarius/internal/note"
	"github.com/kerbin-io/notarius/internal/store"
)

// findDuplicate checks a parsed note against persisted archives: fuzzy title
// match above the configured threshold, exact content-hash match, or exact
// source-hash match. Lookup failures degrade to "no duplicate" so a store
// hiccup never blocks an import.
func (p *Pipeline) findDuplicate(parsed *note.Parsed) *store.Note {
	if n, err := p.db.NoteByContentHash(parsed.ContentHash); err == nil && n != nil {
		return n
	} else if err != nil {
		p.logger.Warn("pipeline: content-hash lookup failed", slog.String("error", err.Error()))
	}

	if n, err := p.db.NoteBySourceHash(parsed.SourceHash); err == nil && n != nil {
		return n
	} else if err != nil {
		p.logger.Warn("pipeline: source-hash lookup failed", slog.String("error", err.Error()))
	}

	titles, err := p.db.ArchiveTitles()
	if err != nil {
		p.logger.Warn("pipeline: title scan failed", slog.String("error", err.Error()))
		return nil
	}
	// Linear scan over all archived titles; fine at vault scale.
	for _, ref := range titles {
		if TitleSimilarity(parsed.Title, ref.Title) >= p.settings.FuzzyTitleThreshold {
			n, err := p.db.NoteByID(ref.ID)
			if err != nil {
				p.logger.Warn("pipeline: duplicate lookup failed", slog.String("error", err.Error()))
				return nil
			}
			return n
		}
	}
	return nil
}

// TitleSimilarity returns a [0,1] similarity between two titles:
// 1 - levenshtein/maxlen over the case-folded strings.
func TitleSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

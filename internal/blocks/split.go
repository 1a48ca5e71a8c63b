// Package blocks splits note content into bounded chunks and runs each chunk
// through the inference service, persisting every chunk so an interrupted run
// resumes where it stopped instead of paying for the same completions twice.
package blocks

import (
	"fmt"
	"regexp"
	"strings"
)

// SplitMethod selects a chunking strategy. Values are stored as part of the
// block identity, so renaming one invalidates persisted runs.
type SplitMethod string

const (
	// SplitWords cuts fixed word-count chunks.
	SplitWords SplitMethod = "words"
	// SplitHeadings cuts on Markdown headings (levels 1-3); content before
	// the first heading becomes an implicit introduction section.
	SplitHeadings SplitMethod = "headings"
	// SplitHeadingWords groups contiguous heading sections into packets not
	// exceeding the word limit, never splitting a section.
	SplitHeadingWords SplitMethod = "heading_words"
	// SplitParagraphs builds character-bounded paragraph windows with one
	// paragraph of overlap, for transcript-like prose without headings.
	SplitParagraphs SplitMethod = "paragraphs"
	// SplitDialogue groups paired speaker turns and merges undersized
	// fragments into their neighbor.
	SplitDialogue SplitMethod = "dialogue"
)

// Valid reports whether m is a known method.
func (m SplitMethod) Valid() bool {
	switch m {
	case SplitWords, SplitHeadings, SplitHeadingWords, SplitParagraphs, SplitDialogue:
		return true
	}
	return false
}

// charsPerWord approximates prose density when a word limit has to bound a
// character window.
const charsPerWord = 6

// Split chunks content with the given method. wordLimit bounds chunk size for
// the strategies that take one; it must be positive.
func Split(content string, method SplitMethod, wordLimit int) ([]string, error) {
	if wordLimit <= 0 {
		return nil, fmt.Errorf("blocks: word limit must be positive, got %d", wordLimit)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	switch method {
	case SplitWords:
		return splitWords(content, wordLimit), nil
	case SplitHeadings:
		return sectionsToBlocks(splitSections(content)), nil
	case SplitHeadingWords:
		return packSections(splitSections(content), wordLimit), nil
	case SplitParagraphs:
		return splitParagraphWindows(content, wordLimit*charsPerWord), nil
	case SplitDialogue:
		return splitDialogue(content, wordLimit)
	default:
		return nil, fmt.Errorf("blocks: unknown split method %q", method)
	}
}

func splitWords(content string, limit int) []string {
	words := strings.Fields(content)
	var out []string
	for start := 0; start < len(words); start += limit {
		end := start + limit
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

var headingRe = regexp.MustCompile(`^(#{1,3})\s+(.*)$`)

type section struct {
	heading string // full heading line, empty for the implicit intro
	body    []string
}

func (s section) text() string {
	lines := s.body
	if s.heading != "" {
		lines = append([]string{s.heading}, lines...)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (s section) wordCount() int {
	return len(strings.Fields(s.text()))
}

// splitSections cuts content at level 1-3 headings. Anything before the first
// heading forms an introduction section.
func splitSections(content string) []section {
	var sections []section
	cur := section{heading: ""}
	started := false

	for _, line := range strings.Split(content, "\n") {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			if started || len(strings.TrimSpace(strings.Join(cur.body, "\n"))) > 0 {
				sections = append(sections, cur)
			}
			cur = section{heading: strings.TrimSpace(line)}
			started = true
			continue
		}
		cur.body = append(cur.body, line)
	}
	sections = append(sections, cur)
	return sections
}

func sectionsToBlocks(sections []section) []string {
	var out []string
	for _, s := range sections {
		if t := s.text(); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// packSections greedily groups contiguous sections into packets whose total
// word count stays under limit. A single oversized section becomes its own
// packet; sections are never split.
func packSections(sections []section, limit int) []string {
	var out []string
	var packet []string
	var packetWords int

	flush := func() {
		if len(packet) > 0 {
			out = append(out, strings.Join(packet, "\n\n"))
			packet = nil
			packetWords = 0
		}
	}

	for _, s := range sections {
		t := s.text()
		if t == "" {
			continue
		}
		wc := s.wordCount()
		if packetWords > 0 && packetWords+wc > limit {
			flush()
		}
		packet = append(packet, t)
		packetWords += wc
	}
	flush()
	return out
}

// splitParagraphWindows accumulates paragraphs into windows bounded by
// charLimit. Consecutive windows share one paragraph of overlap so a thought
// cut at a boundary is still visible to both completions.
func splitParagraphWindows(content string, charLimit int) []string {
	paras := splitParagraphs(content)
	if len(paras) == 0 {
		return nil
	}

	var out []string
	var window []string
	var windowLen int

	for i := 0; i < len(paras); i++ {
		p := paras[i]
		if windowLen > 0 && windowLen+len(p) > charLimit {
			out = append(out, strings.Join(window, "\n\n"))
			// Start the next window with the previous tail paragraph.
			tail := window[len(window)-1]
			window = []string{tail}
			windowLen = len(tail)
		}
		window = append(window, p)
		windowLen += len(p)
	}
	out = append(out, strings.Join(window, "\n\n"))
	return out
}

func splitParagraphs(content string) []string {
	var out []string
	for _, p := range regexp.MustCompile(`\n\s*\n`).Split(content, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var turnRe = regexp.MustCompile(`^([\p{L}][\p{L}\d .'-]{0,40}):\s*(.*)$`)

// minTurnWords is the size under which a dialogue fragment is merged into its
// neighbor instead of standing alone.
const minTurnWords = 5

type turn struct {
	speaker string
	text    string
}

// splitDialogue groups speaker turns into word-bounded blocks. It requires at
// least two distinct speakers with interleaved turns; transcripts that do not
// look like dialogue are rejected so the caller can pick another method.
func splitDialogue(content string, wordLimit int) ([]string, error) {
	turns, err := parseTurns(content)
	if err != nil {
		return nil, err
	}

	// Merge undersized fragments ("Right.", "Mm-hm.") into the previous turn.
	var merged []turn
	for _, t := range turns {
		if len(merged) > 0 && len(strings.Fields(t.text)) < minTurnWords {
			merged[len(merged)-1].text += " " + t.text
			continue
		}
		merged = append(merged, t)
	}

	var out []string
	var block []string
	var blockWords int
	for i := 0; i+1 <= len(merged); i += 2 {
		// Keep paired turns (question/answer) in the same block.
		pair := merged[i : min(i+2, len(merged))]
		var lines []string
		var words int
		for _, t := range pair {
			line := t.speaker + ": " + t.text
			lines = append(lines, line)
			words += len(strings.Fields(line))
		}
		if blockWords > 0 && blockWords+words > wordLimit {
			out = append(out, strings.Join(block, "\n"))
			block = nil
			blockWords = 0
		}
		block = append(block, lines...)
		blockWords += words
	}
	if len(block) > 0 {
		out = append(out, strings.Join(block, "\n"))
	}
	return out, nil
}

func parseTurns(content string) ([]turn, error) {
	var turns []turn
	speakers := make(map[string]struct{})
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := turnRe.FindStringSubmatch(line)
		if m == nil {
			// Continuation of the previous turn.
			if len(turns) == 0 {
				return nil, fmt.Errorf("blocks: dialogue split: leading text without a speaker")
			}
			turns[len(turns)-1].text += " " + line
			continue
		}
		turns = append(turns, turn{speaker: m[1], text: m[2]})
		speakers[m[1]] = struct{}{}
	}
	if len(speakers) < 2 {
		return nil, fmt.Errorf("blocks: dialogue split: need at least two speakers, got %d", len(speakers))
	}
	return turns, nil
}

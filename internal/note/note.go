// Package note extracts the metadata the pipeline needs from raw note
// content: frontmatter fields, title, word count, and the content/source
// hashes used for duplicate detection.
package note

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parsed holds the output of parsing a note file.
type Parsed struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Summary     string
	Source      string
	Author      string
	Project     string
	Lang        string
	Tags        []string
	WordCount   int
	ContentHash string
	SourceHash  string
}

// Parse extracts frontmatter and derived metadata from raw note bytes. path
// supplies the fallback title when neither frontmatter nor a heading has one.
func Parse(path string, data []byte) *Parsed {
	fm, body := splitFrontmatter(data)

	p := &Parsed{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body, path),
		Summary:     stringField(fm, "summary"),
		Source:      stringField(fm, "source"),
		Author:      stringField(fm, "author"),
		Project:     stringField(fm, "project"),
		Lang:        stringField(fm, "lang"),
		Tags:        tagField(fm),
		WordCount:   CountWords(body),
		ContentHash: HashContent(body),
	}
	if p.Source != "" {
		p.SourceHash = HashSource(p.Source)
	}
	return p
}

// CountWords counts whitespace-delimited words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// HashContent returns the hex SHA-256 of the body with line endings and
// surrounding whitespace normalized, so trivial edits do not defeat
// duplicate detection.
func HashContent(body string) string {
	normalized := strings.ReplaceAll(body, "\r\n", "\n")
	normalized = strings.TrimSpace(normalized)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// HashSource returns the hex SHA-256 of a normalized source reference:
// lowercased, scheme and trailing slashes stripped for URLs.
func HashSource(source string) string {
	s := strings.TrimSpace(strings.ToLower(source))
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = u.Host + strings.TrimRight(u.Path, "/")
		if u.RawQuery != "" {
			s += "?" + u.RawQuery
		}
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. Missing or invalid frontmatter yields the whole input as body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// deriveTitle returns the frontmatter title, else the first H1 heading, else
// the file name without extension.
func deriveTitle(fm map[string]interface{}, body, path string) string {
	if t := stringField(fm, "title"); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func stringField(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	if v, ok := fm[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func tagField(fm map[string]interface{}) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["tags"]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

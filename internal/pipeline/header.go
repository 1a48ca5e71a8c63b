package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kerbin-io/notarius/internal/llm"
)

// Header is the model-generated classification header of a note.
type Header struct {
	Tags    []string
	Summary string
}

// GenerateHeader asks the model for tags and a short summary of content.
func (p *Pipeline) GenerateHeader(ctx context.Context, title, content string) (*Header, error) {
	prompt := "Produce a classification header for the note below.\n" +
		"Reply with exactly two lines:\n" +
		"Tags: comma, separated, lowercase\n" +
		"Summary: one or two sentences\n\n" +
		"Title: " + title + "\n\nNote:\n" + truncateWords(content, 600)

	var raw string
	err := llm.Retry(ctx, p.settings.RetryAttempts, p.settings.RetryDelay, func() error {
		text, genErr := p.provider.Generate(ctx, prompt, p.settings.Model)
		if genErr != nil {
			return genErr
		}
		raw = text
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: header: %w", err)
	}
	return parseHeader(raw), nil
}

// parseHeader reads "Tags:" and "Summary:" lines leniently; a reply with
// neither becomes a summary-only header.
func parseHeader(raw string) *Header {
	h := &Header{}
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "tags:"):
			for _, t := range strings.Split(trimmed[len("tags:"):], ",") {
				t = strings.ToLower(strings.TrimSpace(t))
				if t != "" {
					h.Tags = append(h.Tags, t)
				}
			}
		case strings.HasPrefix(lower, "summary:"):
			h.Summary = strings.TrimSpace(trimmed[len("summary:"):])
		}
	}
	if h.Summary == "" && len(h.Tags) == 0 {
		h.Summary = strings.TrimSpace(raw)
	}
	return h
}

// Package pipeline turns a note observed in the import zone into a
// classified, deduplicated, physically filed archive record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kerbin-io/notarius/internal/journal"
	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
)

// Settings are the pipeline's tuning knobs, fixed at startup.
type Settings struct {
	Model               string
	RetryAttempts       int
	RetryDelay          time.Duration
	FuzzyTitleThreshold float64
}

// Pipeline classifies and imports notes.
type Pipeline struct {
	db       *store.DB
	vault    *vault.Vault
	provider llm.Provider
	journal  *journal.Journal
	settings Settings
	logger   *slog.Logger
}

// New returns a Pipeline.
func New(db *store.DB, v *vault.Vault, provider llm.Provider, j *journal.Journal, settings Settings, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		db:       db,
		vault:    v,
		provider: provider,
		journal:  j,
		settings: settings,
		logger:   logger,
	}
}

// classification is a parsed category/subcategory decision.
type classification struct {
	Category    string
	Subcategory string
	Unknown     bool
	RawText     string
}

// categoryPattern matches "Category/Subcategory" anywhere in a model reply.
var categoryPattern = regexp.MustCompile(`([\p{L}][\p{L}\d &'-]*)\s*/\s*([\p{L}][\p{L}\d &'-]*)`)

// classify asks the model to place content into the known category tree and
// parses the "Category/Subcategory" answer from free text.
func (p *Pipeline) classify(ctx context.Context, title, content string) (*classification, error) {
	cats, err := p.db.Categories()
	if err != nil {
		return nil, err
	}
	prompt := buildCategoryPrompt(title, content, cats)

	var raw string
	err = llm.Retry(ctx, p.settings.RetryAttempts, p.settings.RetryDelay, func() error {
		text, genErr := p.provider.Generate(ctx, prompt, p.settings.Model)
		if genErr != nil {
			return genErr
		}
		raw = text
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: classify: %w", err)
	}
	return parseClassification(raw), nil
}

// parseClassification extracts the decision from free model text. Anything
// unparseable, or an explicit uncategorized/unknown verdict, routes the note
// to the holding folder.
func parseClassification(raw string) *classification {
	m := categoryPattern.FindStringSubmatch(raw)
	if m == nil {
		return &classification{Unknown: true, RawText: raw}
	}
	// The pattern admits spaces for multi-word names, so a chatty reply like
	// "the best fit is Tech/Networking" drags its lead-in into the capture.
	// Keep only the name words adjacent to the slash.
	cat := trailingNameWords(m[1])
	sub := leadingNameWords(m[2])
	if strings.EqualFold(cat, "uncategorized") || strings.EqualFold(sub, "unknown") {
		return &classification{Unknown: true, RawText: raw}
	}
	return &classification{Category: cat, Subcategory: sub, RawText: raw}
}

// trailingNameWords keeps the trailing run of capitalized words in s, falling
// back to the last word when none are capitalized.
func trailingNameWords(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	i := len(words)
	for i > 0 && startsUpper(words[i-1]) {
		i--
	}
	if i == len(words) {
		i = len(words) - 1
	}
	return strings.Join(words[i:], " ")
}

// leadingNameWords is the mirror of trailingNameWords for the subcategory
// side of the slash.
func leadingNameWords(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	i := 0
	for i < len(words) && startsUpper(words[i]) {
		i++
	}
	if i == 0 {
		i = 1
	}
	return strings.Join(words[:i], " ")
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func buildCategoryPrompt(title, content string, cats []store.Category) string {
	var b strings.Builder
	b.WriteString("Classify the note into exactly one category/subcategory pair from the list below. ")
	b.WriteString("Answer with the pair only, formatted as Category/Subcategory, or Uncategorized/Unknown if nothing fits.\n\n")

	byParent := make(map[int64][]store.Category)
	var tops []store.Category
	for _, c := range cats {
		if c.ParentID == nil {
			tops = append(tops, c)
		} else {
			byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
		}
	}
	for _, top := range tops {
		b.WriteString("- " + top.Name)
		if top.PromptHint != "" {
			b.WriteString(" (" + top.PromptHint + ")")
		}
		b.WriteString("\n")
		for _, sub := range byParent[top.ID] {
			b.WriteString("  - " + top.Name + "/" + sub.Name + "\n")
		}
	}

	b.WriteString("\nTitle: " + title + "\n\nNote:\n")
	b.WriteString(truncateWords(content, 600))
	return b.String()
}

// EnsureCategoryFolders resolves or creates the category rows, their backing
// folders on disk, and the folder rows, returning ids for the note record.
func (p *Pipeline) EnsureCategoryFolders(category, subcategory string) (catID, subID, folderID int64, dir string, err error) {
	catID, err = p.db.EnsureCategory(category, nil, "", "")
	if err != nil {
		return 0, 0, 0, "", err
	}
	if subcategory != "" {
		subID, err = p.db.EnsureCategory(subcategory, &catID, "", "")
		if err != nil {
			return 0, 0, 0, "", err
		}
	}

	dir = p.vault.CategoryPath(category, subcategory)

	catDir := p.vault.CategoryPath(category, "")
	parentFolder := &store.Folder{
		Name:       category,
		Path:       catDir,
		Type:       store.FolderStorage,
		CategoryID: &catID,
	}
	parentID, err := p.db.EnsureFolder(parentFolder)
	if err != nil {
		return 0, 0, 0, "", err
	}
	folderID = parentID

	if subcategory != "" {
		sub := subID
		folderID, err = p.db.EnsureFolder(&store.Folder{
			Name:          subcategory,
			Path:          dir,
			Type:          store.FolderStorage,
			ParentID:      &parentID,
			CategoryID:    &catID,
			SubcategoryID: &sub,
		})
		if err != nil {
			return 0, 0, 0, "", err
		}
	}
	return catID, subID, folderID, dir, nil
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) <= limit {
		return text
	}
	return strings.Join(words[:limit], " ")
}

// Package synth builds the distilled counterpart of an archived note: an
// embeddings pass over its blocks, an MMR selection of the most telling ones,
// and a final generation, persisted as a synthesis record linked reciprocally
// to the archive.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbin-io/notarius/internal/blocks"
	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/mmr"
	"github.com/kerbin-io/notarius/internal/note"
	"github.com/kerbin-io/notarius/internal/store"
	"github.com/kerbin-io/notarius/internal/vault"
)

// promptKey identifies the synthesis embeddings run in the block store.
const promptKey = "synthesis"

// Settings are the orchestrator's tuning knobs, fixed at startup.
type Settings struct {
	Model          string
	EmbedModel     string
	RetryAttempts  int
	RetryDelay     time.Duration
	BlockWordLimit int
	Glossary       bool
	Questions      bool
}

// Orchestrator produces and regenerates synthesis documents.
type Orchestrator struct {
	db        *store.DB
	vault     *vault.Vault
	provider  llm.Provider
	processor *blocks.Processor
	settings  Settings
	logger    *slog.Logger
}

// New returns an Orchestrator.
func New(db *store.DB, v *vault.Vault, provider llm.Provider, processor *blocks.Processor, settings Settings, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:        db,
		vault:     v,
		provider:  provider,
		processor: processor,
		settings:  settings,
		logger:    logger,
	}
}

// Synthesize builds (or rebuilds) the synthesis of archive. When the archive
// already points at a synthesis record, that record and its file are
// overwritten in place; otherwise a new file is created next to the archive
// and the two records are linked with reciprocal parent pointers.
func (o *Orchestrator) Synthesize(ctx context.Context, archive *store.Note) (*store.Note, error) {
	data, err := o.vault.Read(archive.FilePath)
	if err != nil {
		return nil, err
	}
	parsed := note.Parse(archive.FilePath, data)

	// First-time synthesis resumes a run interrupted mid-way. Regeneration
	// means the content changed, and block identity does not cover content,
	// so persisted embeddings must be recomputed.
	resume := archive.ParentID == nil

	text, err := o.distill(ctx, archive, parsed.Body, resume)
	if err != nil {
		return nil, err
	}

	content := o.renderDocument(archive.Title, text)

	var synthesis *store.Note
	if archive.ParentID != nil {
		synthesis, err = o.db.NoteByID(*archive.ParentID)
		if err != nil {
			return nil, err
		}
	}

	if synthesis == nil {
		path := synthesisPath(archive.FilePath)
		if err := o.vault.Write(path, []byte(content)); err != nil {
			return nil, err
		}
		synthesis = &store.Note{
			Title:         archive.Title,
			FilePath:      path,
			FolderID:      archive.FolderID,
			CategoryID:    archive.CategoryID,
			SubcategoryID: archive.SubcategoryID,
			Status:        store.StatusSynthesis,
			Source:        archive.Source,
			WordCount:     note.CountWords(content),
			ContentHash:   note.HashContent(content),
			Lang:          archive.Lang,
		}
		if _, err := o.db.InsertNote(synthesis); err != nil {
			return nil, err
		}
		if err := o.db.SetPair(archive.ID, synthesis.ID); err != nil {
			return nil, err
		}
		archive.ParentID = &synthesis.ID
		synthesis.ParentID = &archive.ID
		o.logger.Info("synth: synthesis created",
			slog.Int64("archive_id", archive.ID),
			slog.Int64("synthesis_id", synthesis.ID),
			slog.String("path", path))
		return synthesis, nil
	}

	// Regeneration: overwrite the existing file and record.
	if err := o.vault.Write(synthesis.FilePath, []byte(content)); err != nil {
		return nil, err
	}
	synthesis.Title = archive.Title
	synthesis.Status = store.StatusSynthesis
	synthesis.WordCount = note.CountWords(content)
	synthesis.ContentHash = note.HashContent(content)
	if err := o.db.UpdateNote(synthesis); err != nil {
		return nil, err
	}
	o.logger.Info("synth: synthesis regenerated",
		slog.Int64("archive_id", archive.ID),
		slog.Int64("synthesis_id", synthesis.ID))
	return synthesis, nil
}

// Regenerate rebuilds a synthesis record from its linked archive. It is the
// entry point when the modified file is the synthesis itself.
func (o *Orchestrator) Regenerate(ctx context.Context, synthesis *store.Note) (*store.Note, error) {
	if synthesis.ParentID == nil {
		return nil, fmt.Errorf("synth: note %d has no linked archive", synthesis.ID)
	}
	archive, err := o.db.NoteByID(*synthesis.ParentID)
	if err != nil {
		return nil, err
	}
	return o.Synthesize(ctx, archive)
}

// distill runs the embeddings pass, the MMR selection, and the final
// generation over the archive body.
func (o *Orchestrator) distill(ctx context.Context, archive *store.Note, body string, resume bool) (string, error) {
	req := blocks.Request{
		NoteID:    archive.ID,
		Content:   body,
		PromptKey: promptKey,
		Model:     o.settings.EmbedModel,
		Method:    blocks.SplitHeadingWords,
		WordLimit: o.settings.BlockWordLimit,
		Source:    blocks.SourceEmbeddings,
		Persist:   true,
		Resume:    resume,
	}
	if _, err := o.processor.Process(ctx, req); err != nil {
		return "", err
	}
	texts, vectors, err := o.processor.RunVectors(req)
	if err != nil {
		return "", err
	}

	selected := texts
	if len(vectors) > 1 {
		preset := mmr.AutoPreset(note.CountWords(body))
		picked := mmr.Select(vectors, 0, preset.Ratio, preset.Lambda)
		selected = make([]string, 0, len(picked))
		for _, idx := range picked {
			selected = append(selected, texts[idx])
		}
		o.logger.Debug("synth: blocks selected",
			slog.Int64("note_id", archive.ID),
			slog.String("preset", preset.Name),
			slog.Int("selected", len(picked)),
			slog.Int("total", len(vectors)))
	}
	if len(selected) == 0 {
		// Nothing embedded (empty note or all blocks failed): fall back to
		// the raw body so the synthesis still exists.
		selected = []string{body}
	}

	text, err := o.generate(ctx, buildSynthesisPrompt(archive.Title, selected))
	if err != nil {
		return "", fmt.Errorf("synth: generate: %w", err)
	}

	if o.settings.Glossary {
		glossary, err := o.buildGlossary(ctx, selected)
		if err != nil {
			o.logger.Warn("synth: glossary failed, skipping", slog.String("error", err.Error()))
		} else if glossary != "" {
			text += "\n\n## Glossary\n\n" + glossary
		}
	}
	if o.settings.Questions {
		questions, err := o.generate(ctx, "List three open questions a careful reader would ask after this text. One per line.\n\n"+text)
		if err != nil {
			o.logger.Warn("synth: questions failed, skipping", slog.String("error", err.Error()))
		} else if strings.TrimSpace(questions) != "" {
			text += "\n\n## Questions\n\n" + strings.TrimSpace(questions)
		}
	}
	return text, nil
}

// buildGlossary is a two-pass sequence: extract candidate terms from the
// selected blocks, then merge and dedupe them into the final list.
func (o *Orchestrator) buildGlossary(ctx context.Context, selected []string) (string, error) {
	extracted, err := o.generate(ctx,
		"Extract the specialized terms from the text below, one per line as \"term: definition\".\n\n"+
			strings.Join(selected, "\n\n"))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(extracted) == "" {
		return "", nil
	}
	merged, err := o.generate(ctx,
		"Merge the glossary entries below: remove duplicates, keep the clearest definition per term, sort alphabetically. Keep the \"term: definition\" format.\n\n"+
			extracted)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(merged), nil
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	var out string
	err := llm.Retry(ctx, o.settings.RetryAttempts, o.settings.RetryDelay, func() error {
		text, genErr := o.provider.Generate(ctx, prompt, o.settings.Model)
		if genErr != nil {
			return genErr
		}
		out = text
		return nil
	})
	return strings.TrimSpace(out), err
}

func buildSynthesisPrompt(title string, selected []string) string {
	var b strings.Builder
	b.WriteString("Write a distilled version of the note \"" + title + "\" from its key passages below. ")
	b.WriteString("Keep the original structure where it helps, preserve every concrete fact, and stay under a third of the original length.\n")
	for i, s := range selected {
		b.WriteString(fmt.Sprintf("\n--- passage %d ---\n", i+1))
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

// renderDocument wraps the generated text with a title heading when the model
// returned none.
func (o *Orchestrator) renderDocument(title, text string) string {
	if strings.HasPrefix(strings.TrimSpace(text), "#") {
		return strings.TrimSpace(text) + "\n"
	}
	return "# " + title + "\n\n" + strings.TrimSpace(text) + "\n"
}

// synthesisPath derives the synthesis file path from the archive's: same
// directory, same stem, a " (synthesis)" suffix.
func synthesisPath(archivePath string) string {
	dir := filepath.Dir(archivePath)
	base := filepath.Base(archivePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+" (synthesis)"+ext)
}

package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kerbin-io/notarius/internal/llm"
	"github.com/kerbin-io/notarius/internal/store"
)

// SourceText and SourceEmbeddings name the two kinds of processing runs; the
// value is part of the persisted block identity.
const (
	SourceText       = "text"
	SourceEmbeddings = "embeddings"
)

// Request describes one processing run over a note's content.
type Request struct {
	NoteID  int64
	Content string

	// PromptKey names the prompt for block identity; PromptText is the
	// instruction prepended to each block for text runs.
	PromptKey  string
	PromptText string

	Model     string
	Method    SplitMethod
	WordLimit int

	// Source is SourceText or SourceEmbeddings.
	Source string

	// Persist stores blocks in the metadata store (required for Resume).
	Persist bool
	// Resume reuses persisted processed blocks instead of re-running
	// inference for them.
	Resume bool
}

// Processor runs split-then-infer over note content with persisted,
// resumable blocks.
type Processor struct {
	db       *store.DB
	provider llm.Provider
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewProcessor returns a Processor using provider with the given retry
// policy.
func NewProcessor(db *store.DB, provider llm.Provider, attempts int, delay time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		db:       db,
		provider: provider,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}
}

// Process splits req.Content, runs every block through the inference service
// and returns the joined result. Blocks whose persisted status is already
// processed are reused when req.Resume is set. A block that exhausts its
// retries is marked failed and skipped; the rest of the note still completes.
func (p *Processor) Process(ctx context.Context, req Request) (string, error) {
	if !req.Method.Valid() {
		return "", fmt.Errorf("blocks: unknown split method %q", req.Method)
	}
	chunks, err := Split(req.Content, req.Method, req.WordLimit)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	runKey := store.BlockKey{
		NoteID:      req.NoteID,
		Prompt:      req.PromptKey,
		Model:       req.Model,
		SplitMethod: string(req.Method),
		WordLimit:   req.WordLimit,
		Source:      req.Source,
	}
	if req.Persist && !req.Resume {
		// Clean recompute: drop any stale run before persisting new blocks.
		if err := p.db.DeleteBlocksForRun(runKey); err != nil {
			return "", err
		}
	}

	responses := make([]string, 0, len(chunks))
	var failed int
	for i, chunk := range chunks {
		key := runKey
		key.BlockIndex = i

		if req.Persist {
			existing, err := p.db.EnsureBlock(key, chunk)
			if err != nil {
				return "", err
			}
			if req.Resume && existing.Status == store.BlockProcessed {
				p.logger.Debug("blocks: reused",
					slog.Int64("note_id", req.NoteID),
					slog.Int("index", i))
				responses = append(responses, existing.Response)
				continue
			}
		}

		response, err := p.infer(ctx, req, chunk)
		if err != nil {
			failed++
			p.logger.Warn("blocks: block failed, continuing",
				slog.Int64("note_id", req.NoteID),
				slog.Int("index", i),
				slog.String("error", err.Error()))
			if req.Persist {
				if dbErr := p.db.SetBlockResult(key, "", store.BlockError); dbErr != nil {
					return "", dbErr
				}
			}
			continue
		}
		if req.Persist {
			if err := p.db.SetBlockResult(key, response, store.BlockProcessed); err != nil {
				return "", err
			}
		}
		responses = append(responses, response)
	}

	if failed > 0 {
		p.logger.Warn("blocks: run finished with failures",
			slog.Int64("note_id", req.NoteID),
			slog.Int("failed", failed),
			slog.Int("total", len(chunks)))
	}

	if req.Source == SourceEmbeddings {
		return strings.Join(responses, "\n"), nil
	}
	return assemble(responses), nil
}

// infer runs one block through the service with bounded retries, normalizing
// the response to text (vectors are JSON-serialized for transport).
func (p *Processor) infer(ctx context.Context, req Request, chunk string) (string, error) {
	var response string
	err := llm.Retry(ctx, p.attempts, p.delay, func() error {
		switch req.Source {
		case SourceEmbeddings:
			vec, err := p.provider.Embed(ctx, chunk, req.Model)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(vec)
			if err != nil {
				return fmt.Errorf("%w: encode vector: %v", llm.ErrMalformed, err)
			}
			response = string(encoded)
			return nil
		default:
			prompt := chunk
			if req.PromptText != "" {
				prompt = req.PromptText + "\n\n" + chunk
			}
			text, err := p.provider.Generate(ctx, prompt, req.Model)
			if err != nil {
				return err
			}
			response = text
			return nil
		}
	})
	return response, err
}

// RunVectors loads the persisted embeddings of a prior run, in block order.
// Blocks that failed are skipped; their text is returned alongside so indexes
// stay aligned with vectors.
func (p *Processor) RunVectors(req Request) ([]string, [][]float32, error) {
	runKey := store.BlockKey{
		NoteID:      req.NoteID,
		Prompt:      req.PromptKey,
		Model:       req.Model,
		SplitMethod: string(req.Method),
		WordLimit:   req.WordLimit,
		Source:      req.Source,
	}
	rows, err := p.db.BlocksForRun(runKey)
	if err != nil {
		return nil, nil, err
	}
	var texts []string
	var vectors [][]float32
	for _, b := range rows {
		if b.Status != store.BlockProcessed {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(b.Response), &vec); err != nil || len(vec) == 0 {
			continue
		}
		texts = append(texts, b.Content)
		vectors = append(vectors, vec)
	}
	return texts, vectors, nil
}

var fenceOnlyRe = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")

// assemble joins block responses into the final document: each block gets a
// heading if the model returned none, stray code fences are stripped, and
// blank-line runs collapse to one.
func assemble(responses []string) string {
	var parts []string
	for i, r := range responses {
		r = strings.TrimSpace(fenceOnlyRe.ReplaceAllString(r, ""))
		if r == "" {
			continue
		}
		if !strings.HasPrefix(r, "#") {
			r = fmt.Sprintf("## Part %d\n\n%s", i+1, r)
		}
		parts = append(parts, r)
	}
	joined := strings.Join(parts, "\n\n")
	joined = regexp.MustCompile(`\n{3,}`).ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

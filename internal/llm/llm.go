// Package llm talks to the language-model inference service. The concrete
// client speaks the Ollama HTTP API; consumers depend on the Provider
// interface so tests can substitute a fake.
package llm

import (
	"context"
	"errors"
)

// Provider is the inference collaborator contract.
type Provider interface {
	// Generate returns the model's text completion for prompt.
	Generate(ctx context.Context, prompt, model string) (string, error)
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Distinct failure conditions of the inference service. Callers branch on
// these to decide retryability.
var (
	ErrModelNotFound = errors.New("llm: model not found")
	ErrUnavailable   = errors.New("llm: service unavailable")
	ErrTimeout       = errors.New("llm: request timed out")
	ErrMalformed     = errors.New("llm: malformed response")
)

// Retryable reports whether err is a transient condition worth another
// attempt. Model-not-found and malformed responses fail fast: retrying them
// cannot help.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

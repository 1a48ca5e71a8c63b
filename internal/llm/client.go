package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is an HTTP client for an Ollama-compatible inference service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

var _ Provider = (*Client)(nil)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Generate implements Provider.
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	var out generateResponse
	if err := c.post(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt, Stream: false}, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", classifyAPIError(out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}
	return out.Response, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed implements Provider.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	var out embedResponse
	if err := c.post(ctx, "/api/embeddings", embedRequest{Model: model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, classifyAPIError(out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformed)
	}
	return out.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrModelNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return classifyAPIError(apiErr.Error)
		}
		return fmt.Errorf("%w: status %d", ErrMalformed, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// classifyAPIError maps in-band error strings to typed conditions.
func classifyAPIError(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not found") || strings.Contains(lower, "no such model") {
		return fmt.Errorf("%w: %s", ErrModelNotFound, msg)
	}
	return fmt.Errorf("%w: %s", ErrMalformed, msg)
}

func isClientTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

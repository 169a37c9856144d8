// Package llm abstracts the text completion provider behind a small
// interface. The rest of the engine treats the model as an opaque
// text-in/text-out collaborator; provider specifics (OpenAI, Gemini) stay
// inside this package.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAPIKey is returned when a provider is constructed without credentials.
var ErrNoAPIKey = errors.New("llm: API key not configured")

// Client is the interface for text completion providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Retrying wraps a Client with a single immediate retry on transient
// failure. Context cancellation is never retried.
type Retrying struct {
	inner Client
}

// WithRetry wraps client with the single-shot retry policy.
func WithRetry(client Client) *Retrying {
	return &Retrying{inner: client}
}

func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	return r.CompleteWithSystem(ctx, "", prompt)
}

func (r *Retrying) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := r.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("llm completion: %w", err)
	}

	out, retryErr := r.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if retryErr != nil {
		return "", fmt.Errorf("llm completion failed after retry: %w", retryErr)
	}
	return out, nil
}

// CleanJSON strips markdown code fences from a model response so it can be
// fed to json.Unmarshal. Models wrap JSON in ```json blocks regardless of
// instructions often enough that every parse site needs this.
func CleanJSON(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

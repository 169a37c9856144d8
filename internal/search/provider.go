// Package search provides web search, postcode lookup, and source
// fetching used by the tool layer and the verification gate.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"doorstep/internal/llm"
)

// Result is a single search hit.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
}

// Provider performs a web search and returns ranked results.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// LLMProvider answers search queries through an LLM with structured
// JSON output. It is the default provider when no dedicated search
// backend is configured.
type LLMProvider struct {
	client llm.Client
}

// NewLLMProvider creates a provider backed by the given LLM client.
func NewLLMProvider(client llm.Client) *LLMProvider {
	return &LLMProvider{client: client}
}

const searchSystemPrompt = `You are a web search assistant. Given a query, return the most relevant, current results you know of as a JSON array. Each element must have "url", "title", and "description" fields. Return only the JSON array, no prose.`

// Search asks the LLM for results matching the query.
func (p *LLMProvider) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	prompt := fmt.Sprintf("Search query: %s\nReturn at most %d results.", query, limit)
	raw, err := p.client.CompleteWithSystem(ctx, searchSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("search completion failed: %w", err)
	}

	var results []Result
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &results); err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		if results[i].Source == "" {
			results[i].Source = "llm"
		}
	}
	return results, nil
}

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// tavilyEndpoint is a variable so tests can point the client at a fake server.
var tavilyEndpoint = "https://api.tavily.com/search"

// Tavily is the primary vendor. It answers JSON POSTs authenticated with a
// Bearer token.
type Tavily struct {
	APIKey string
	// HTTPClient overrides the shared bounded client when non-nil.
	HTTPClient *http.Client
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

// Search implements Provider.
func (t *Tavily) Search(ctx context.Context, query string, max int) ([]Result, error) {
	body, err := json.Marshal(map[string]any{
		"query":        query,
		"search_depth": "basic",
		"max_results":  max,
		"topic":        "general",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily: status %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
			Snippet string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("tavily: decode: %w", err)
	}

	out := make([]Result, 0, len(payload.Results))
	for _, r := range payload.Results {
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		out = append(out, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: snippet,
			Source:  hostOf(r.URL),
		})
	}
	return out, nil
}

func (t *Tavily) client() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return defaultHTTPClient
}

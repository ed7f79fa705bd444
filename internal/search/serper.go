package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// serperEndpoint is a variable so tests can point the client at a fake server.
var serperEndpoint = "https://google.serper.dev/search"

// Serper is the backup vendor, a Google SERP API keyed via header.
type Serper struct {
	APIKey string
	// HTTPClient overrides the shared bounded client when non-nil.
	HTTPClient *http.Client
}

// Name implements Provider.
func (s *Serper) Name() string { return "serper" }

// Search implements Provider.
func (s *Serper) Search(ctx context.Context, query string, max int) ([]Result, error) {
	body, err := json.Marshal(map[string]any{
		"q":   query,
		"num": max,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serperEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.APIKey)

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper: status %d", resp.StatusCode)
	}

	var payload struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("serper: decode: %w", err)
	}

	out := make([]Result, 0, len(payload.Organic))
	for _, r := range payload.Organic {
		out = append(out, Result{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Source:  hostOf(r.Link),
		})
	}
	return out, nil
}

func (s *Serper) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return defaultHTTPClient
}

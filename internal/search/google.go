package search

import (
	"context"
	"fmt"
	"net/url"
)

// GoogleLink is the last-resort provider. It performs no network call; it
// hands the user a prepared Google query link so the chain never comes back
// empty-handed.
type GoogleLink struct{}

// Name implements Provider.
func (GoogleLink) Name() string { return "google" }

// Search implements Provider.
func (GoogleLink) Search(_ context.Context, query string, _ int) ([]Result, error) {
	link := "https://www.google.com/search?q=" + url.QueryEscape(query)
	return []Result{{
		Title:   "Búsqueda en Google",
		URL:     link,
		Snippet: fmt.Sprintf("Haz clic para buscar %q en Google", query),
		Source:  "google.com",
	}}, nil
}

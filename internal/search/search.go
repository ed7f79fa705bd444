// Package search provides the web-search vendor chain used to ground
// coaching answers in current sources. It is a small library with
// production-grade ergonomics:
//
//   - No logging in the library (callers decide how/what to log)
//   - Clear, documented types; one Provider interface for every vendor
//   - Context-aware HTTP calls with a shared bounded client
//   - A Chain combinator that falls through vendors in order
//
// Vendors are best-effort: a provider that errors or returns nothing simply
// yields to the next one. The final Google fallback never fails, so a chain
// ending in it always produces at least one result.
package search

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Result is one web hit, already normalized across vendors.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Provider is implemented by every search vendor.
type Provider interface {
	// Name identifies the vendor in logs and responses.
	Name() string
	// Search returns up to max normalized results for the query.
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// Chain tries each provider in order and returns the first non-empty result
// set. Provider errors are swallowed; the chain only fails when every
// provider failed or came back empty.
type Chain []Provider

// Search implements Provider over the whole chain.
func (c Chain) Search(ctx context.Context, query string, max int) ([]Result, error) {
	for _, p := range c {
		results, err := p.Search(ctx, query, max)
		if err != nil || len(results) == 0 {
			continue
		}
		return results, nil
	}
	return nil, nil
}

// Name implements Provider.
func (c Chain) Name() string { return "chain" }

// defaultHTTPClient bounds vendor calls so a hung API cannot pin a request.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// hostOf extracts the hostname for the Source field, tolerating bad URLs.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

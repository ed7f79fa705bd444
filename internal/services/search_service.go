// Package services – SearchService
//
// This file implements the SearchService, which fronts the web-search vendor
// chain: it validates and enriches queries, enforces the hourly search quota,
// and normalizes vendor output (result cap, snippet clipping) before it
// reaches the handler.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/fitbot/fitbot-backend/internal/ratelimit"
	"github.com/fitbot/fitbot-backend/internal/search"
)

// Query shaping limits.
const (
	maxQueryRunes    = 200
	maxSearchResults = 5
	maxSnippetRunes  = 200
)

// Search categories. Each one appends domain terms so generic vendor results
// lean toward coaching content.
const (
	SearchFitness   = "fitness"
	SearchNutrition = "nutrition"
	SearchProducts  = "products"
	SearchGeneral   = "general"
)

// SearchResponse is the normalized outcome of one web search.
type SearchResponse struct {
	Results      []search.Result `json:"results"`
	Query        string          `json:"query"`
	TotalResults int             `json:"total_results"`
}

// SearchService validates, throttles, and runs web searches.
type SearchService struct {
	// Providers is the vendor chain, usually Tavily -> Serper -> GoogleLink.
	Providers search.Provider
	// Limiter enforces the hourly search quota. A nil limiter disables it.
	Limiter ratelimit.Limiter

	Log zerolog.Logger
}

// NewSearchService constructs a SearchService.
func NewSearchService(providers search.Provider, lim ratelimit.Limiter, log zerolog.Logger) *SearchService {
	return &SearchService{
		Providers: providers,
		Limiter:   lim,
		Log:       log.With().Str("component", "search_service").Logger(),
	}
}

// Search runs one quota-checked web search for the user.
func (s *SearchService) Search(ctx context.Context, userID, query, category string) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(query) > maxQueryRunes {
		return nil, ErrQueryTooLong
	}

	if s.Limiter != nil {
		d, err := s.Limiter.Allow(ctx, userID, ratelimit.ScopeSearch)
		if err != nil {
			s.Log.Error().Err(err).Msg("rate limiter unavailable, failing open")
		} else if !d.Allowed {
			return nil, &RateLimitError{Scope: ratelimit.ScopeSearch, Decision: d}
		}
	}

	enhanced := enhanceQuery(query, category)

	results, err := s.Providers.Search(ctx, enhanced, maxSearchResults)
	if err != nil {
		return nil, err
	}

	clean := make([]search.Result, 0, maxSearchResults)
	for _, r := range results {
		if r.URL == "" || r.Title == "" {
			continue
		}
		r.Snippet = clipSnippet(r.Snippet)
		clean = append(clean, r)
		if len(clean) == maxSearchResults {
			break
		}
	}

	return &SearchResponse{
		Results:      clean,
		Query:        enhanced,
		TotalResults: len(clean),
	}, nil
}

// enhanceQuery appends category terms so vendors surface coaching content.
func enhanceQuery(query, category string) string {
	switch category {
	case SearchFitness:
		return query + " fitness ejercicio entrenamiento"
	case SearchNutrition:
		return query + " nutrición dieta alimentación saludable"
	case SearchProducts:
		return query + " suplementos productos fitness comprar"
	default:
		return query
	}
}

// clipSnippet caps snippets so a verbose vendor cannot bloat responses.
func clipSnippet(s string) string {
	if utf8.RuneCountInString(s) <= maxSnippetRunes {
		return s
	}
	return string([]rune(s)[:maxSnippetRunes]) + "..."
}

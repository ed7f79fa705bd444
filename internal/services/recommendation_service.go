// Package services – RecommendationService
//
// This file implements the RecommendationService, which asks the model for
// structured product suggestions (JSON mode), cross-references them against
// the local catalog, and records each exchange in the user's history.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
	"github.com/fitbot/fitbot-backend/internal/provider"
	"github.com/fitbot/fitbot-backend/internal/ratelimit"
)

// Catalog matching and shaping limits.
const (
	maxRecommendedProducts = 3
	minCatalogRating       = 3.5
	historyPageSize        = 10
)

// recommendSystemPrompt constrains the model to the structured reply the
// service parses.
const recommendSystemPrompt = `Eres un experto en suplementos y productos de fitness.
Recomienda máximo 3 productos específicos que sean relevantes para el usuario.
Cada producto debe tener una razón clara y una prioridad del 1-10.

Categorías disponibles: Proteínas, Creatina, Pre-entreno, Post-entreno, Vitaminas,
Minerales, Quemadores de grasa, Aminoácidos, Carbohidratos, Ganadores de masa,
Omega 3, Multivitamínicos, Soporte articular, Energéticos, Barras y snacks,
Equipamiento, Otros.

Responde únicamente con un objeto JSON con esta forma:
{"products":[{"name":"...","category":"...","reason":"...","priority":1}],"explanation":"..."}`

// RecommendationStore defines the repository contract required by
// RecommendationService.
type RecommendationStore interface {
	// GetFitnessProfile fetches the profile, or gorm.ErrRecordNotFound.
	GetFitnessProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.FitnessProfile, error)

	// FindProductByName returns the best catalog match at or above minRating,
	// or nil on a miss.
	FindProductByName(ctx context.Context, db *gorm.DB, name string, minRating float64) (*domain.Product, error)

	// CreateRecommendation appends one history row.
	CreateRecommendation(ctx context.Context, db *gorm.DB, userID string, products []string, reason string) (*domain.Recommendation, error)

	// ListRecommendations returns the user's history, newest first.
	ListRecommendations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Recommendation, error)
}

// Completer is the slice of the provider gateway the recommendation flow
// needs: one structured, non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, msgs []provider.Message, jsonMode bool) (string, error)
}

// ProductSuggestion is one model suggestion with its catalog match (nil when
// the catalog has no product of that name rated high enough).
type ProductSuggestion struct {
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Reason   string          `json:"reason"`
	Priority int             `json:"priority"`
	Product  *domain.Product `json:"product,omitempty"`
}

// RecommendationResult is the outcome of one recommendation exchange.
type RecommendationResult struct {
	Suggestions []ProductSuggestion `json:"suggestions"`
	Explanation string              `json:"explanation"`
}

// RecommendationService produces and records product recommendations.
type RecommendationService struct {
	DB      *gorm.DB
	Store   RecommendationStore
	Model   Completer
	Limiter ratelimit.Limiter

	Log zerolog.Logger
}

// NewRecommendationService constructs a RecommendationService.
func NewRecommendationService(db *gorm.DB, store RecommendationStore, model Completer, lim ratelimit.Limiter, log zerolog.Logger) *RecommendationService {
	return &RecommendationService{
		DB:      db,
		Store:   store,
		Model:   model,
		Limiter: lim,
		Log:     log.With().Str("component", "recommendation_service").Logger(),
	}
}

// Recommend asks the model for up to three product suggestions tailored to
// the user's profile, goals, and latest message, matches them against the
// catalog, and persists the exchange.
func (s *RecommendationService) Recommend(ctx context.Context, userID string, goals []string, userMessage string) (*RecommendationResult, error) {
	if s.Limiter != nil {
		d, err := s.Limiter.Allow(ctx, userID, ratelimit.ScopeRecommend)
		if err != nil {
			s.Log.Error().Err(err).Msg("rate limiter unavailable, failing open")
		} else if !d.Allowed {
			return nil, &RateLimitError{Scope: ratelimit.ScopeRecommend, Decision: d}
		}
	}

	prompt := s.buildPrompt(ctx, userID, goals, userMessage)

	raw, err := s.Model.Complete(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: recommendSystemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}, true)
	if err != nil {
		if errors.Is(err, provider.ErrNotConfigured) {
			return nil, ErrRecommendationUnavailable
		}
		s.Log.Error().Err(err).Msg("recommendation completion")
		return nil, ErrRecommendationUnavailable
	}

	parsed, err := parseRecommendation(raw)
	if err != nil {
		s.Log.Error().Err(err).Str("raw", raw).Msg("unparseable recommendation payload")
		return nil, ErrRecommendationUnavailable
	}

	titler := cases.Title(language.Spanish)
	result := &RecommendationResult{Explanation: parsed.Explanation}
	names := make([]string, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		sg := ProductSuggestion{
			Name:     p.Name,
			Category: titler.String(strings.TrimSpace(p.Category)),
			Reason:   p.Reason,
			Priority: clampPriority(p.Priority),
		}
		if match, err := s.Store.FindProductByName(ctx, s.DB, p.Name, minCatalogRating); err != nil {
			s.Log.Warn().Err(err).Str("product", p.Name).Msg("catalog lookup")
		} else {
			sg.Product = match
		}
		result.Suggestions = append(result.Suggestions, sg)
		names = append(names, p.Name)
	}

	// Highest priority first for stable presentation.
	sort.SliceStable(result.Suggestions, func(i, j int) bool {
		return result.Suggestions[i].Priority > result.Suggestions[j].Priority
	})

	if _, err := s.Store.CreateRecommendation(ctx, s.DB, userID, names, parsed.Explanation); err != nil {
		s.Log.Error().Err(err).Msg("persist recommendation history")
	}

	return result, nil
}

// History returns the user's most recent recommendation exchanges.
func (s *RecommendationService) History(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	return s.Store.ListRecommendations(ctx, s.DB, userID, historyPageSize)
}

// buildPrompt renders the user context fed to the model.
func (s *RecommendationService) buildPrompt(ctx context.Context, userID string, goals []string, userMessage string) string {
	var b strings.Builder
	b.WriteString("Usuario busca recomendaciones de productos de fitness y nutrición.")

	if profile, err := s.Store.GetFitnessProfile(ctx, s.DB, userID); err == nil {
		b.WriteString("\n\n")
		b.WriteString(profileSummary(profile))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.Log.Warn().Err(err).Msg("loading fitness profile for recommendations")
	}

	if userMessage != "" {
		fmt.Fprintf(&b, "\n\nMensaje del usuario: %q", userMessage)
	}
	if len(goals) > 0 {
		fmt.Fprintf(&b, "\n\nObjetivos específicos: %s", strings.Join(goals, ", "))
	}
	return b.String()
}

type recommendationPayload struct {
	Products []struct {
		Name     string `json:"name"`
		Category string `json:"category"`
		Reason   string `json:"reason"`
		Priority int    `json:"priority"`
	} `json:"products"`
	Explanation string `json:"explanation"`
}

// parseRecommendation decodes the JSON-mode reply and enforces the shape the
// prompt demanded: at least one product, at most three.
func parseRecommendation(raw string) (*recommendationPayload, error) {
	var p recommendationPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return nil, err
	}
	if len(p.Products) == 0 {
		return nil, errors.New("no products in payload")
	}
	if len(p.Products) > maxRecommendedProducts {
		p.Products = p.Products[:maxRecommendedProducts]
	}
	return &p, nil
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

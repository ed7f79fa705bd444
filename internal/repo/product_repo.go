// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the product
// catalog and the recommendation history.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
)

// FindProductByName returns the best-rated catalog product whose name
// contains the given fragment (case-insensitive) with a rating at or above
// minRating, or nil when nothing qualifies. A miss is not an error: the
// recommendation flow degrades to a model-only suggestion.
func FindProductByName(ctx context.Context, db *gorm.DB, name string, minRating float64) (*domain.Product, error) {
	var out []domain.Product
	err := db.WithContext(ctx).
		Where("name LIKE ? COLLATE NOCASE", "%"+name+"%").
		Where("rating >= ?", minRating).
		Order("rating desc").
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// CreateRecommendation appends one recommendation-history row for a user.
func CreateRecommendation(ctx context.Context, db *gorm.DB, userID string, products []string, reason string) (*domain.Recommendation, error) {
	r := &domain.Recommendation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Products:  domain.JoinCSV(products),
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ListRecommendations returns a user's recommendation history, newest first.
func ListRecommendations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Recommendation, error) {
	var out []domain.Recommendation
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

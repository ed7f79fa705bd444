// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User and
// FitnessProfile models. The chat core treats both as read-mostly: users are
// owned by the authentication collaborator, profiles by profile management.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
)

// GetUser fetches a user by ID, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// IncrementMessageCount bumps the lifetime usage counter for a user.
// Missing users are ignored: the counter is best-effort reporting data.
func IncrementMessageCount(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", userID).
		Update("message_count", gorm.Expr("message_count + 1")).Error
}

// GetFitnessProfile fetches the fitness profile for a user, or ErrNotFound
// when the user never completed one.
func GetFitnessProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.FitnessProfile, error) {
	var p domain.FitnessProfile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertFitnessProfile creates the user's profile when absent and otherwise
// saves the mutated record passed in. The service layer owns field-by-field
// application of partial updates; this function only persists the result.
func UpsertFitnessProfile(ctx context.Context, db *gorm.DB, p *domain.FitnessProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
		p.CreatedAt = time.Now().UTC()
		return db.WithContext(ctx).Create(p).Error
	}
	return db.WithContext(ctx).Save(p).Error
}

// Package services – ProfileService
//
// This file implements the ProfileService, which reads and partially updates
// the fitness profile feeding prompt construction. Updates are field-by-field:
// nil pointers in a ProfileUpdate mean "leave as is", so a client can change
// the weight without resubmitting the whole questionnaire.
package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
)

// Profile validation bounds.
const (
	minAge      = 13
	maxAge      = 120
	minWeightKg = 30
	maxWeightKg = 300
	minHeightCm = 100
	maxHeightCm = 250
)

// ProfileStore defines the repository contract required by ProfileService.
type ProfileStore interface {
	// GetUser verifies the account exists.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// GetFitnessProfile fetches the profile, or gorm.ErrRecordNotFound.
	GetFitnessProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.FitnessProfile, error)

	// UpsertFitnessProfile creates or saves the profile row.
	UpsertFitnessProfile(ctx context.Context, db *gorm.DB, p *domain.FitnessProfile) error
}

// ProfileUpdate is a partial profile change. Nil fields are left untouched;
// set fields are validated and applied.
type ProfileUpdate struct {
	Age           *int      `json:"age,omitempty"`
	Gender        *string   `json:"gender,omitempty"`
	WeightKg      *float64  `json:"weight_kg,omitempty"`
	HeightCm      *float64  `json:"height_cm,omitempty"`
	ActivityLevel *string   `json:"activity_level,omitempty"`
	FitnessGoals  *[]string `json:"fitness_goals,omitempty"`
	WorkoutDays   *int      `json:"workout_days,omitempty"`
	Experience    *string   `json:"experience,omitempty"`
	Injuries      *[]string `json:"injuries,omitempty"`
	Allergies     *[]string `json:"allergies,omitempty"`
	DietType      *string   `json:"diet_type,omitempty"`
	BudgetEUR     *float64  `json:"budget_eur,omitempty"`
	Brands        *[]string `json:"preferred_brands,omitempty"`
}

// ProfileService reads and updates fitness profiles.
type ProfileService struct {
	DB    *gorm.DB
	Store ProfileStore
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, store ProfileStore) *ProfileService {
	return &ProfileService{DB: db, Store: store}
}

// Get returns the user's fitness profile. A user who never completed the
// questionnaire gets an empty profile, not an error.
func (s *ProfileService) Get(ctx context.Context, userID string) (*domain.FitnessProfile, error) {
	p, err := s.Store.GetFitnessProfile(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.FitnessProfile{UserID: userID}, nil
		}
		return nil, err
	}
	return p, nil
}

// Update validates and applies a partial profile change, creating the profile
// row on first write. It returns the resulting profile.
func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*domain.FitnessProfile, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}

	if _, err := s.Store.GetUser(ctx, s.DB, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	p, err := s.Store.GetFitnessProfile(ctx, s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = &domain.FitnessProfile{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	upd.applyTo(p)

	if err := s.Store.UpsertFitnessProfile(ctx, s.DB, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (u ProfileUpdate) validate() error {
	if u.Age != nil && (*u.Age < minAge || *u.Age > maxAge) {
		return fmt.Errorf("%w: age must be between %d and %d", ErrInvalidProfile, minAge, maxAge)
	}
	if u.WeightKg != nil && (*u.WeightKg < minWeightKg || *u.WeightKg > maxWeightKg) {
		return fmt.Errorf("%w: weight must be between %d and %d kg", ErrInvalidProfile, minWeightKg, maxWeightKg)
	}
	if u.HeightCm != nil && (*u.HeightCm < minHeightCm || *u.HeightCm > maxHeightCm) {
		return fmt.Errorf("%w: height must be between %d and %d cm", ErrInvalidProfile, minHeightCm, maxHeightCm)
	}
	if u.WorkoutDays != nil && (*u.WorkoutDays < 0 || *u.WorkoutDays > 7) {
		return fmt.Errorf("%w: workout days must be between 0 and 7", ErrInvalidProfile)
	}
	if u.BudgetEUR != nil && *u.BudgetEUR < 0 {
		return fmt.Errorf("%w: budget must not be negative", ErrInvalidProfile)
	}
	return nil
}

func (u ProfileUpdate) applyTo(p *domain.FitnessProfile) {
	if u.Age != nil {
		p.Age = u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.WeightKg != nil {
		p.WeightKg = u.WeightKg
	}
	if u.HeightCm != nil {
		p.HeightCm = u.HeightCm
	}
	if u.ActivityLevel != nil {
		p.ActivityLevel = *u.ActivityLevel
	}
	if u.FitnessGoals != nil {
		p.FitnessGoals = domain.JoinCSV(*u.FitnessGoals)
	}
	if u.WorkoutDays != nil {
		p.WorkoutDays = u.WorkoutDays
	}
	if u.Experience != nil {
		p.Experience = *u.Experience
	}
	if u.Injuries != nil {
		p.Injuries = domain.JoinCSV(*u.Injuries)
	}
	if u.Allergies != nil {
		p.Allergies = domain.JoinCSV(*u.Allergies)
	}
	if u.DietType != nil {
		p.DietType = *u.DietType
	}
	if u.BudgetEUR != nil {
		p.BudgetEUR = u.BudgetEUR
	}
	if u.Brands != nil {
		p.Brands = domain.JoinCSV(*u.Brands)
	}
}

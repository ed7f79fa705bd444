// Package domain defines the persistence models for the FitBot coaching
// backend: users and their fitness profiles, conversations with their
// messages, and the product catalog with recommendation history. These types
// are mapped with GORM and form the core data layer of the application.
package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Subscription tiers. The tier caps how many conversations a user may own.
const (
	TierBasic   = "BASIC"
	TierPremium = "PREMIUM"
	TierPro     = "PRO"
)

// Conversation statuses.
const (
	ConversationActive   = "ACTIVE"
	ConversationArchived = "ARCHIVED"
)

// Message roles.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
)

// User is the account record. It is created and mutated by the
// authentication collaborator; the chat core only ever reads it
// (subscription tier for quota checks).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email / Name: account identity.
//   - SubscriptionTier: BASIC, PREMIUM, or PRO (enforced by DB constraint).
//   - MessageCount: lifetime counter of chat turns, for usage reporting.
type User struct {
	ID               string         `json:"id"    gorm:"type:char(36);primaryKey"`
	Email            string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Name             string         `json:"name"  gorm:"type:varchar(100)"`
	SubscriptionTier string         `json:"subscription_tier" gorm:"type:varchar(16);not null;default:'BASIC';check:subscription_tier IN ('BASIC','PREMIUM','PRO')"`
	MessageCount     int64          `json:"message_count" gorm:"not null;default:0"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// FitnessProfile holds the coaching context for a user, one-to-one with User.
// It is written by profile management and consumed read-only during prompt
// construction. List-valued attributes (goals, injuries, allergies, preferred
// brands) are stored as comma-separated text; the helpers below take care of
// the round trip.
type FitnessProfile struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID string `json:"user_id" gorm:"type:char(36);not null;uniqueIndex"`

	Age           *int     `json:"age,omitempty"`
	Gender        string   `json:"gender,omitempty"         gorm:"type:varchar(16)"`
	WeightKg      *float64 `json:"weight_kg,omitempty"`
	HeightCm      *float64 `json:"height_cm,omitempty"`
	ActivityLevel string   `json:"activity_level,omitempty" gorm:"type:varchar(32)"`
	FitnessGoals  string   `json:"fitness_goals"            gorm:"type:text"`
	WorkoutDays   *int     `json:"workout_days,omitempty"`
	Experience    string   `json:"experience,omitempty"     gorm:"type:varchar(32)"`
	Injuries      string   `json:"injuries,omitempty"       gorm:"type:text"`
	Allergies     string   `json:"allergies,omitempty"      gorm:"type:text"`
	DietType      string   `json:"diet_type,omitempty"      gorm:"type:varchar(32)"`
	BudgetEUR     *float64 `json:"budget_eur,omitempty"`
	Brands        string   `json:"preferred_brands,omitempty" gorm:"type:text"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FitnessProfile.
func (FitnessProfile) TableName() string { return "fitness_profiles" }

// Goals returns the fitness goals as a slice.
func (p *FitnessProfile) Goals() []string { return splitCSV(p.FitnessGoals) }

// AllergyList returns the allergies as a slice.
func (p *FitnessProfile) AllergyList() []string { return splitCSV(p.Allergies) }

// JoinCSV renders a list attribute back to its stored comma-separated form.
func JoinCSV(vals []string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Conversation represents a coaching thread owned by a user. It is created
// lazily on the first message of a thread; the title defaults to a prefix of
// that message.
type Conversation struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:char(36);not null;index:idx_user_conversations"`
	Title     string         `json:"title"   gorm:"type:varchar(100);not null;default:'Nueva conversación'"`
	Status    string         `json:"status"  gorm:"type:varchar(16);not null;default:'ACTIVE';check:status IN ('ACTIVE','ARCHIVED')"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"index"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is a single utterance within a conversation, authored either by the
// USER or the ASSISTANT. Messages are append-only: within a conversation they
// are strictly ordered by creation time, and the user turn is always persisted
// before the assistant turn it provoked.
type Message struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	Role           string         `json:"role"            gorm:"type:varchar(16);not null;check:role IN ('USER','ASSISTANT')"`
	Content        string         `json:"content"         gorm:"type:text;not null"`
	CreatedAt      time.Time      `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Conversation is the parent thread. Messages are cascade-deleted
	// if their conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Product is a catalog entry used to back product recommendations.
type Product struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"     gorm:"type:varchar(255);not null;index"`
	Category  string         `json:"category" gorm:"type:varchar(64);not null;index"`
	PriceEUR  float64        `json:"price_eur"`
	Rating    float64        `json:"rating"   gorm:"index"`
	URL       string         `json:"url"      gorm:"type:varchar(512)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Recommendation records one product-recommendation exchange for a user:
// which product names were suggested and the model's overall explanation.
type Recommendation struct {
	ID        string         `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:char(36);not null;index"`
	Products  string         `json:"products" gorm:"type:text;not null"` // comma-separated product names
	Reason    string         `json:"reason"   gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Recommendation.
func (Recommendation) TableName() string { return "recommendations" }

// ConversationLimit returns the conversation ceiling for a subscription tier.
// Unknown tiers fall back to the BASIC ceiling.
func ConversationLimit(tier string) int {
	switch tier {
	case TierPro:
		return 200
	case TierPremium:
		return 50
	default:
		return 10
	}
}

// Package services defines the business logic for conversations, chat turns,
// fitness profiles, web search, and product recommendations. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/fitbot/fitbot-backend/internal/ratelimit"
)

// Service-level errors.
var (
	// ErrConversationNotFound indicates that the requested conversation does
	// not exist or is not accessible to the current user.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when a chat turn contains no text after
	// trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a chat turn exceeds the maximum
	// configured rune length.
	ErrMessageTooLong = errors.New("message too long")

	// ErrConversationLimit is returned when starting a new conversation would
	// exceed the ceiling of the user's subscription tier.
	ErrConversationLimit = errors.New("conversation limit reached for subscription tier")

	// ErrUserNotFound indicates that the authenticated user has no account row.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyQuery is returned when a web search has no query text.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrQueryTooLong is returned when a web search query exceeds the allowed
	// length.
	ErrQueryTooLong = errors.New("search query too long")

	// ErrInvalidProfile is returned when a profile update contains a value
	// outside its allowed range.
	ErrInvalidProfile = errors.New("invalid profile value")

	// ErrRecommendationUnavailable is returned when the model backend cannot
	// produce a product recommendation.
	ErrRecommendationUnavailable = errors.New("recommendations unavailable")
)

// RateLimitError signals that an hourly quota is spent. It carries the
// limiter decision so the HTTP layer can render the X-RateLimit-* headers and
// the structured 429 body.
type RateLimitError struct {
	Scope    ratelimit.Scope
	Decision ratelimit.Decision
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d per hour", e.Scope, e.Decision.Limit)
}

// RetryAfterSeconds returns the whole seconds until the window resets, with a
// floor of one so Retry-After is always a positive hint.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	secs := int64(time.Until(e.Decision.Reset).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IsRateLimit reports whether err is a quota denial and returns the typed
// error when it is.
func IsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

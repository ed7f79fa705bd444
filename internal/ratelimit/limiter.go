// Package ratelimit enforces per-user hourly quotas on the expensive
// operations of the API (chat turns, web searches, product recommendations).
//
// All backends share the same model: a fixed one-hour window, one counter per
// (identity, scope, window). The first request of a window creates the
// counter, every request increments it, and the decision compares the
// incremented value against the scope's ceiling. Counters are never
// decremented; denied requests still consume nothing because the counter only
// moves past the limit once the limit is already spent. The in-process
// backend opens the window at the first request of an idle identity; the
// Redis backend keys counters to the clock hour and lets the TTL end the
// window.
//
// There are two implementations: an in-process map (single instance, tests)
// and a Redis-backed one for multi-instance deployments.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Scope names one rate-limited operation class.
type Scope string

// Rate-limited scopes.
const (
	ScopeChat      Scope = "chat"
	ScopeSearch    Scope = "search"
	ScopeRecommend Scope = "recommendations"
)

// Limits holds the per-hour ceiling for each scope.
type Limits struct {
	Chat      int
	Search    int
	Recommend int
}

// ForScope returns the ceiling for a scope; unknown scopes get the chat limit.
func (l Limits) ForScope(s Scope) int {
	switch s {
	case ScopeSearch:
		return l.Search
	case ScopeRecommend:
		return l.Recommend
	default:
		return l.Chat
	}
}

// Decision is the outcome of one quota check. It carries everything the HTTP
// layer needs to render the X-RateLimit-* headers and the 429 body.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter answers "may this identity perform one more operation in this
// scope right now". Implementations must count the request atomically:
// two concurrent calls for the last slot must not both be allowed.
type Limiter interface {
	Allow(ctx context.Context, identity string, scope Scope) (Decision, error)
}

// windowFor returns the clock-aligned window boundaries used by the Redis
// backend.
func windowFor(now time.Time) (start, end time.Time) {
	start = now.UTC().Truncate(time.Hour)
	return start, start.Add(time.Hour)
}

func decide(count int64, limit int, reset time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
}

// MemoryLimiter is the in-process backend. Counters for expired windows are
// dropped lazily on access, so memory stays proportional to the set of
// identities active in the current hour.
type MemoryLimiter struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*memWindow
}

type memWindow struct {
	reset time.Time
	count int64
}

// NewMemoryLimiter builds an in-process limiter with the given ceilings.
func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	return &MemoryLimiter{
		limits:  limits,
		now:     time.Now,
		windows: make(map[string]*memWindow),
	}
}

// Allow counts one request for (identity, scope) and reports the decision.
// The window opens at the first request and runs a full hour from it.
func (m *MemoryLimiter) Allow(_ context.Context, identity string, scope Scope) (Decision, error) {
	now := m.now()
	key := string(scope) + ":" + identity

	m.mu.Lock()
	w := m.windows[key]
	if w == nil || !now.Before(w.reset) {
		w = &memWindow{reset: now.Add(time.Hour)}
		m.windows[key] = w
	}
	w.count++
	count := w.count
	reset := w.reset
	m.mu.Unlock()

	return decide(count, m.limits.ForScope(scope), reset), nil
}

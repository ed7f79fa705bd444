package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTLScript increments the window counter and arms its expiry on
// first use. Running both in one script keeps the counter from leaking
// without a TTL when the process dies between the two commands.
var incrWithTTLScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return c
`)

// RedisLimiter is the shared backend for multi-instance deployments. Every
// API instance pointed at the same Redis sees the same counters, so the
// hourly ceiling holds across the fleet.
type RedisLimiter struct {
	rdb    *redis.Client
	limits Limits
	now    func() time.Time
}

// NewRedisLimiter builds a Redis-backed limiter with the given ceilings.
func NewRedisLimiter(rdb *redis.Client, limits Limits) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limits: limits, now: time.Now}
}

// Allow counts one request for (identity, scope) and reports the decision.
// Backend failures are returned to the caller, which decides the policy
// (the service layer fails open so a Redis outage degrades to unlimited
// rather than taking chat down).
func (r *RedisLimiter) Allow(ctx context.Context, identity string, scope Scope) (Decision, error) {
	now := r.now()
	start, end := windowFor(now)

	ttl := int64(end.Sub(now.UTC()).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	key := fmt.Sprintf("fitbot:rl:%s:%s:%s", scope, identity, start.Format("2006010215"))
	count, err := incrWithTTLScript.Run(ctx, r.rdb, []string{key}, ttl).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	return decide(count, r.limits.ForScope(scope), end), nil
}

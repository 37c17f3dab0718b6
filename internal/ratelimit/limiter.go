// Package ratelimit throttles outbound typing notifications. Two fixed-window
// implementations share the Limiter interface: an in-process one for a single
// client and a Redis-backed one (INCR + EXPIRE) for a fleet of client
// processes that share one identity, e.g. a bot pool.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the key prefix, maximum number of
// events allowed in the window, and the window duration.
type Rule struct {
	Key    string        // key prefix (e.g., "rl:typing:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// TypingRule returns a rule allowing one typing notification per interval.
func TypingRule(interval time.Duration) Rule {
	return Rule{Key: "rl:typing:", Limit: 1, Window: interval}
}

// Limiter decides whether an event for identifier may go out now.
type Limiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// ---------------------------------------------------------------------------
// In-process limiter
// ---------------------------------------------------------------------------

type window struct {
	start time.Time
	count int
}

// LocalLimiter is a goroutine-safe in-memory fixed-window limiter.
type LocalLimiter struct {
	rule Rule
	now  func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewLocalLimiter creates a LocalLimiter for rule. A nil now uses time.Now.
func NewLocalLimiter(rule Rule, now func() time.Time) *LocalLimiter {
	if now == nil {
		now = time.Now
	}
	return &LocalLimiter{
		rule:    rule,
		now:     now,
		windows: make(map[string]*window),
	}
}

// Allow implements Limiter. It never returns an error.
func (l *LocalLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.rule.Window {
		l.windows[key] = &window{start: now, count: 1}
		return true, nil
	}

	w.count++
	return w.count <= l.rule.Limit, nil
}

// ---------------------------------------------------------------------------
// Redis limiter
// ---------------------------------------------------------------------------

// RedisLimiter performs rate limiting checks against Redis.
type RedisLimiter struct {
	client *redis.Client
	rule   Rule
}

// NewRedisLimiter creates a RedisLimiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, rule Rule) *RedisLimiter {
	return &RedisLimiter{client: client, rule: rule}
}

// Allow implements Limiter. It increments the counter in Redis and sets the
// expiry on first access.
//
// On Redis errors the method fails open (returns true) so that a Redis
// outage never suppresses typing notifications for good.
func (l *RedisLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	key := l.rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// Without a TTL the key would throttle the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}

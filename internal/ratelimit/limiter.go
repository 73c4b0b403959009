// Package ratelimit implements per-source admission control using a
// sliding-window-log algorithm executed atomically inside Redis.
//
// The window state lives entirely in Redis and is only ever mutated through
// a single Lua script, so two concurrent admissions for the same user can
// never both observe "under limit" when only one slot remains.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript is the atomic sliding-window-log check-and-record.
//
// KEYS[1] is the per-user window set (rate_limit:{user_id}). ARGV carries
// now (unix ms), the window length (ms), the per-window limit, and a unique
// marker value (the event id, so two events on the same millisecond cannot
// collide in the set).
//
// Returns 1 when admitted, 0 when rejected. The key expires slightly after
// the window so idle users' state is reclaimed automatically.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local marker = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, marker)
	redis.call('PEXPIRE', key, window + 1000)
	return 1
end
return 0
`)

// Limiter decides admission for a source identity.
type Limiter struct {
	client redis.Scripter
	window time.Duration
	limit  int
}

// NewLimiter creates a Limiter bound to a Redis script executor.
func NewLimiter(client redis.Scripter, window time.Duration, limit int) *Limiter {
	return &Limiter{client: client, window: window, limit: limit}
}

// Admit atomically records an admission marker for userID when the trailing
// window still has capacity. It returns false when the user is over the
// limit, and a non-nil error when Redis is unreachable — callers must treat
// that error as a rejection (fail closed), never as an admission.
func (l *Limiter) Admit(ctx context.Context, userID string, now time.Time, markerID string) (bool, error) {
	res, err := admitScript.Run(ctx, l.client,
		[]string{windowKey(userID)},
		now.UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		markerID,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Limit returns the configured per-window limit.
func (l *Limiter) Limit() int { return l.limit }

func windowKey(userID string) string {
	return "rate_limit:" + userID
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "knot:ratelimit:"

// Token-bucket refill script: bucket state lives in a Redis hash so
// concurrent callers on different server processes still share one bucket.
// KEYS[1] = bucket key, ARGV = [burst, refillPerSec, nowUnixMicro, ttlSec]
var allowScript = redis.NewScript(`
local bucket = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local burst = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])
if tokens == nil then
  tokens = burst
  ts = now
end
local elapsed = (now - ts) / 1000000
tokens = math.min(burst, tokens + elapsed * rate)
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[4]))
return allowed
`)

// Limiter is a per-key token bucket backed by Redis
type Limiter struct {
	client *redis.Client
	rate   float64 // tokens added per second
	burst  int
}

// NewLimiter creates a Limiter refilling at the given rate up to burst
func NewLimiter(client *redis.Client, rate float64, burst int) *Limiter {
	return &Limiter{client: client, rate: rate, burst: burst}
}

// Allow consumes one token for the key and reports whether the call may
// proceed. A nil client or a Redis failure fails open: rate limiting is a
// protection layer, not a correctness requirement.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	ttl := int(float64(l.burst)/l.rate) + 60
	res, err := allowScript.Run(ctx, l.client, []string{keyPrefix + key},
		l.burst, l.rate, time.Now().UnixMicro(), ttl).Int()
	if err != nil {
		return true
	}
	return res == 1
}

// UserKey builds a bucket key for an action scoped to one user
func UserKey(action string, userID uint) string {
	return fmt.Sprintf("%s:user:%d", action, userID)
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidBucket = errors.New("rate limiter needs a key, a positive rate and a positive burst")
)

// takeTokenScript refills KEYS[1] at ARGV[1] tokens/s up to ARGV[2] and takes
// one token if it can. Replies {allowed, millitokens left, retry ms}; redis
// truncates Lua numbers so fractions travel scaled by 1000.
const takeTokenScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
local retry = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[3]))

return {allowed, math.floor(tokens * 1000), retry}
`

// TokenBucket is a redis token bucket shared by every replica.
type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(takeTokenScript)}
}

// Allow takes one token from key. Callers fail open or closed on error as
// they see fit.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}

	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(reply) != 3 {
		return nil, fmt.Errorf("token bucket %s: unexpected reply %v", key, reply)
	}

	return &RateLimitResult{
		Allowed:    reply[0] == 1,
		Limit:      burst,
		Remaining:  int(reply[1] / 1000),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// bucketTTL keeps idle buckets around for twice the full refill time.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(float64(burst)/rate*2))
	return time.Duration(seconds) * time.Second
}

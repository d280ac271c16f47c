package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements the same token bucket as MemoryLimiter, but
// atomically in Redis so multiple instances share one budget per key.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens/second)
// ARGV[2] = burst (bucket capacity)
// ARGV[3] = now (unix milliseconds)
// ARGV[4] = key TTL (seconds)
// Returns 1 when a token was consumed, 0 when the bucket is empty.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last_ms = tonumber(state[2])

if tokens == nil then
  tokens = burst
  last_ms = now
end

local elapsed = (now - last_ms) / 1000.0
tokens = math.min(burst, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', now)
redis.call('EXPIRE', key, ttl)
return allowed
`)

// RedisLimiter is a token bucket limiter backed by a shared Redis instance.
// The bucket state lives in a Redis hash per key with a TTL, so idle keys
// expire without a cleanup goroutine.
type RedisLimiter struct {
	client *redis.Client
	rate   float64
	burst  int
	prefix string
}

// NewRedisLimiter creates a Redis-backed token bucket limiter.
//   - rate: sustained requests per second per key
//   - burst: maximum burst size (token bucket capacity)
func NewRedisLimiter(client *redis.Client, rate float64, burst int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		rate:   rate,
		burst:  burst,
		prefix: "formsync:ratelimit:",
	}
}

// Allow consumes one token from the shared bucket for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	// TTL covers a full refill from empty plus slack.
	ttl := int(float64(l.burst)/l.rate) + 60

	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.rate, l.burst, time.Now().UnixMilli(), ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis eval: %w", err)
	}
	return res == 1, nil
}

// Close closes the underlying Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

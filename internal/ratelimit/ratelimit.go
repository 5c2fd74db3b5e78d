// Package ratelimit enforces per-channel send rates with Redis so the limit
// holds across every process sharing the instance.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/domain"
)

// Lua script for an atomic check-and-increment on a one-second bucket.
// A GET then INCR from Go would race with other dispatchers.
const secondLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, 2)
end
return 1
`

// Limiter bounds sends per second per channel. Safe for concurrent use.
type Limiter struct {
	redis  *redis.Client
	rates  map[domain.Channel]int
	script *redis.Script
	sleep  func(ctx context.Context, d time.Duration)
}

// NewLimiter creates a limiter. rates maps each channel to its maximum
// sends per second; channels absent from the map are unlimited.
func NewLimiter(redisClient *redis.Client, rates map[domain.Channel]int) *Limiter {
	return &Limiter{
		redis:  redisClient,
		rates:  rates,
		script: redis.NewScript(secondLimitLuaScript),
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		},
	}
}

// Allow atomically reserves one send slot in the current one-second bucket.
func (l *Limiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	limit, ok := l.rates[channel]
	if !ok || limit <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:%s:sec:%d", channel, time.Now().Unix())
	result, err := l.script.Run(ctx, l.redis, []string{key}, limit).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Acquire blocks until a send slot is available or the context is done.
// Denials wait until the next second bucket opens before retrying.
func (l *Limiter) Acquire(ctx context.Context, channel domain.Channel) error {
	for {
		allowed, err := l.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		now := time.Now()
		l.sleep(ctx, now.Truncate(time.Second).Add(time.Second).Sub(now))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key pattern:
// - ratelimit:{scope}:{client} - fixed window counter, TTL = window

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 120, Window: time.Minute}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
	script *goredis.Script
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	if config.Limit <= 0 || config.Window <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{client: client, config: config, script: limitScript}
}

// Allow counts one request for clientID in scope.
func (r *RateLimiter) Allow(ctx context.Context, scope, clientID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", scope, clientID)
	window := int(r.config.Window.Seconds())
	if window < 1 {
		window = 1
	}

	result, err := r.script.Run(ctx, r.client, []string{key}, r.config.Limit, window).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	return &RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetIn:   time.Duration(result[2]) * time.Second,
		Limit:     r.config.Limit,
	}, nil
}

func (r *RateLimiter) Reset(ctx context.Context, scope, clientID string) error {
	return r.client.Del(ctx, fmt.Sprintf("ratelimit:%s:%s", scope, clientID)).Err()
}

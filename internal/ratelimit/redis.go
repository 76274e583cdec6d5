package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now_ms, member)
		redis.call('PEXPIRE', key, window_ms)
		return { 1, limit - count - 1, 0 }
	end

	local retry_after_ms = 0
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry_after_ms = tonumber(oldest[2]) + window_ms - now_ms
		if retry_after_ms < 0 then retry_after_ms = 0 end
	end
	return { 0, 0, retry_after_ms }
`)

// SlidingWindow allows at most Limit attempts per key in any Window, counted
// in a Redis sorted set. Rejected attempts are not recorded.
type SlidingWindow struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindow(rdb *redis.Client, prefix string, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, prefix: prefix, limit: limit, window: window, now: time.Now}
}

func (l *SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	v, err := slidingWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString()).Result()
	if err != nil {
		return Decision{}, err
	}
	return parseResult(v, l.limit)
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// BucketConfig parameterizes TokenBucket.
type BucketConfig struct {
	Prefix         string
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
}

// TokenBucket refills RefillTokens every RefillInterval up to Capacity. The
// bucket state lives in a Redis hash that expires after TTL of inactivity.
type TokenBucket struct {
	rdb *redis.Client
	cfg BucketConfig
	now func() time.Time
}

func NewTokenBucket(rdb *redis.Client, cfg BucketConfig) *TokenBucket {
	return &TokenBucket{rdb: rdb, cfg: cfg, now: time.Now}
}

func (b *TokenBucket) Allow(ctx context.Context, key string) (Decision, error) {
	v, err := tokenBucketScript.Run(ctx, b.rdb, []string{b.cfg.Prefix + ":" + key},
		b.now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Result()
	if err != nil {
		return Decision{}, err
	}
	return parseResult(v, b.cfg.Capacity)
}

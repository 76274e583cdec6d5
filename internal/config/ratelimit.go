package config

import "time"

// RateLimitConfig configures the token bucket that throttles every /v1/auth
// request per client IP.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

// LoginLimitConfig configures the sliding window applied to login attempts
// per IP and email.
type LoginLimitConfig struct {
	Limit  int
	Window time.Duration
}

func loadRateLimit(e *env) RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        e.boolean("RATE_LIMIT_ENABLED", true),
		Capacity:       e.integer("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   e.integer("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.dur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            e.dur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}

func loadLoginLimit(e *env) LoginLimitConfig {
	c := LoginLimitConfig{
		Limit:  e.integer("LOGIN_RATE_LIMIT", 5),
		Window: e.dur("LOGIN_RATE_WINDOW", 15*time.Minute),
	}
	if c.Limit < 1 {
		e.fail("LOGIN_RATE_LIMIT must be positive")
	}
	if c.Window <= 0 {
		e.fail("LOGIN_RATE_WINDOW must be positive")
	}
	return c
}
